package testsupport

import (
	"context"

	"github.com/temirov/pin2saved/internal/identity"
	migrate "github.com/temirov/pin2saved/internal/migrate"
)

// IdentityResolverStub returns a fixed identity and records requested identifiers.
type IdentityResolverStub struct {
	Identity             identity.Identity
	Error                error
	RequestedIdentifiers []string
}

// Resolve returns the configured identity or error.
func (resolver *IdentityResolverStub) Resolve(_ context.Context, identifier string) (identity.Identity, error) {
	resolver.RequestedIdentifiers = append(resolver.RequestedIdentifiers, identifier)
	if resolver.Error != nil {
		return identity.Identity{}, resolver.Error
	}
	return resolver.Identity, nil
}

// SessionOpenerStub hands out a fixed repository.
type SessionOpenerStub struct {
	Repository migrate.RepositoryOperations
	Error      error
	OpenedFor  []identity.Identity
}

// OpenSession returns the configured repository or error.
func (opener *SessionOpenerStub) OpenSession(_ context.Context, actor identity.Identity) (migrate.RepositoryOperations, error) {
	opener.OpenedFor = append(opener.OpenedFor, actor)
	if opener.Error != nil {
		return nil, opener.Error
	}
	return opener.Repository, nil
}

// ServiceStub captures migration execution requests for verification.
type ServiceStub struct {
	Result           migrate.MigrationResult
	Error            error
	ProgressMessages []string
	ExecutedOptions  []migrate.MigrationOptions
	Dependencies     []migrate.ServiceDependencies
}

// Provider adapts the stub to migrate.ServiceProvider.
func (service *ServiceStub) Provider(dependencies migrate.ServiceDependencies) (migrate.MigrationExecutor, error) {
	service.Dependencies = append(service.Dependencies, dependencies)
	return service, nil
}

// Execute replays the configured progress messages and returns the configured outcome.
func (service *ServiceStub) Execute(_ context.Context, options migrate.MigrationOptions, progress migrate.ProgressReporter) (migrate.MigrationResult, error) {
	service.ExecutedOptions = append(service.ExecutedOptions, options)
	for _, message := range service.ProgressMessages {
		if progress != nil {
			progress(message)
		}
	}
	return service.Result, service.Error
}

// PrompterStub answers prompts with fixed responses.
type PrompterStub struct {
	ConfirmResponse bool
	ConfirmError    error
	Secret          string
	SecretError     error
	ConfirmPrompts  []string
	SecretPrompts   []string
}

// Confirm records the prompt and returns the configured response.
func (prompter *PrompterStub) Confirm(prompt string) (bool, error) {
	prompter.ConfirmPrompts = append(prompter.ConfirmPrompts, prompt)
	return prompter.ConfirmResponse, prompter.ConfirmError
}

// ReadSecret records the prompt and returns the configured secret.
func (prompter *PrompterStub) ReadSecret(prompt string) (string, error) {
	prompter.SecretPrompts = append(prompter.SecretPrompts, prompt)
	return prompter.Secret, prompter.SecretError
}
