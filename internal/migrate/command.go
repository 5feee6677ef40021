package migrate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/pin2saved/internal/atproto"
	"github.com/temirov/pin2saved/internal/identity"
	"github.com/temirov/pin2saved/internal/ui"
	"github.com/temirov/pin2saved/internal/utils"
	flagutils "github.com/temirov/pin2saved/internal/utils/flags"
)

const (
	commandUseConstant                        = "migrate [identifier]"
	commandShortDescriptionConstant           = "Convert pin-marker replies into saved posts"
	commandLongDescriptionConstant            = "migrate finds every reply of yours whose only content is the pin emoji, saves the post it replied to, and optionally deletes the pin replies afterwards. The identifier is a handle (bare names get .bsky.social appended) or a DID."
	modeFlagNameConstant                      = "mode"
	modeFlagUsageConstant                     = "Keep or delete the pin replies after saving their posts."
	accessTokenFlagNameConstant               = "access-token"
	accessTokenFlagUsageConstant              = "Use an existing access token instead of an app password."
	assumeYesFlagNameConstant                 = "yes"
	assumeYesFlagShorthandConstant            = "y"
	assumeYesFlagUsageConstant                = "Delete pin replies without asking for confirmation."
	pageSizeFlagNameConstant                  = "page-size"
	pageSizeFlagUsageConstant                 = "Records requested per page (1-100)."
	pageRetryLimitFlagNameConstant            = "page-retry-limit"
	pageRetryLimitFlagUsageConstant           = "Consecutive failures tolerated per page (0 retries forever)."
	pageRetryDelayFlagNameConstant            = "page-retry-delay"
	pageRetryDelayFlagUsageConstant           = "Wait between retries of a failed page."
	identifierMissingMessageConstant          = "identifier required: pass a handle or DID, or set migration.identifier"
	configurationInvalidErrorTemplateConstant = "invalid migration configuration: %w"
	identityClientCreationErrorTemplate       = "unable to construct identity client: %w"
	identityResolverCreationErrorTemplate     = "unable to construct identity resolver: %w"
	passwordPromptErrorTemplateConstant       = "unable to read app password: %w"
	confirmationPromptErrorTemplateConstant   = "unable to read confirmation: %w"
	migrationFailedErrorTemplateConstant      = "migration failed: %w"
	passwordPromptTemplateConstant            = "App password for %s: "
	deletionConfirmationPromptConstant        = "Pin replies will be deleted after their posts are saved. Continue? [y/N]: "
	deletionCancelledMessageConstant          = "Migration cancelled; nothing was changed."
	migrationSummaryTemplateConstant          = "Saved %d posts, deleted %d pin replies."
	migrationFailedLogMessageConstant         = "Migration failed"
	migrationCancelledLogMessageConstant      = "Migration cancelled by user"
	logFieldSessionKindConstant               = "session_kind"
	sessionKindAccessTokenConstant            = "access_token"
	sessionKindAppPasswordConstant            = "app_password"
	sessionOpenedLogMessageConstant           = "Session configured"
)

// ServiceProvider constructs a migration executor from dependencies.
type ServiceProvider func(dependencies ServiceDependencies) (MigrationExecutor, error)

// LoggerProvider supplies a zap logger instance.
type LoggerProvider func() *zap.Logger

// Prompter combines the interactive prompts the command needs.
type Prompter interface {
	ConfirmationPrompter
	SecretPrompter
}

type commandOptions struct {
	configuration CommandConfiguration
	runIdentifier string
}

// CommandBuilder assembles the migrate Cobra command.
type CommandBuilder struct {
	LoggerProvider        LoggerProvider
	ConsoleLoggerProvider LoggerProvider
	ConfigurationProvider func() CommandConfiguration
	ServiceProvider       ServiceProvider
	Prompter              Prompter
	HTTPClient            *http.Client
}

// Build constructs the migrate command.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:           commandUseConstant,
		Short:         commandShortDescriptionConstant,
		Long:          commandLongDescriptionConstant,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.MaximumNArgs(1),
		RunE:          builder.runMigrate,
	}

	var modeValue string
	var assumeYesValue bool
	flagutils.AddChoiceFlag(command.Flags(), &modeValue, modeFlagNameConstant, string(ModeKeep), []string{string(ModeKeep), string(ModeDelete)}, modeFlagUsageConstant)
	flagutils.AddToggleFlag(command.Flags(), &assumeYesValue, assumeYesFlagNameConstant, assumeYesFlagShorthandConstant, false, assumeYesFlagUsageConstant)
	command.Flags().String(accessTokenFlagNameConstant, "", accessTokenFlagUsageConstant)
	command.Flags().Int(pageSizeFlagNameConstant, DefaultPageSize, pageSizeFlagUsageConstant)
	command.Flags().Int(pageRetryLimitFlagNameConstant, 0, pageRetryLimitFlagUsageConstant)
	command.Flags().Duration(pageRetryDelayFlagNameConstant, 0, pageRetryDelayFlagUsageConstant)

	return command, nil
}

func (builder *CommandBuilder) runMigrate(command *cobra.Command, arguments []string) error {
	options, optionsError := builder.parseOptions(command, arguments)
	if optionsError != nil {
		return optionsError
	}
	configuration := options.configuration

	serviceLogger := builder.resolveLogger()
	logger := serviceLogger.With(zap.String(logFieldRunIdentifierConstant, options.runIdentifier))
	consoleLogger := builder.resolveConsoleLogger()
	prompter := builder.resolvePrompter(command)

	if configuration.Mode.DeletesMarkers() && !configuration.AssumeYes {
		confirmed, confirmationError := prompter.Confirm(deletionConfirmationPromptConstant)
		if confirmationError != nil {
			return fmt.Errorf(confirmationPromptErrorTemplateConstant, confirmationError)
		}
		if !confirmed {
			logger.Info(migrationCancelledLogMessageConstant)
			consoleLogger.Info(deletionCancelledMessageConstant)
			return nil
		}
	}

	sessionOpener, sessionError := builder.buildSessionOpener(configuration, prompter, logger)
	if sessionError != nil {
		return sessionError
	}

	identityResolver, resolverError := builder.buildIdentityResolver(configuration)
	if resolverError != nil {
		return resolverError
	}

	service, serviceError := builder.resolveService(ServiceDependencies{
		Logger:           serviceLogger,
		IdentityResolver: identityResolver,
		SessionOpener:    sessionOpener,
	})
	if serviceError != nil {
		return serviceError
	}

	reporter := ui.NewConsoleProgressReporter(utils.NewFlushingWriter(command.OutOrStdout()), logger)
	formatter := ui.StatusFormatter{SavedPostsURL: configuration.SavedPostsURL}

	result, migrationError := service.Execute(command.Context(), MigrationOptions{
		Identifier:     configuration.Identifier,
		Mode:           configuration.Mode,
		PageSize:       configuration.PageSize,
		PageRetryLimit: configuration.PageRetryLimit,
		PageRetryDelay: configuration.PageRetryDelay,
		RunIdentifier:  options.runIdentifier,
	}, reporter.Report)
	if migrationError != nil {
		reporter.Finish(formatter.BuildErrorStatus(migrationError))
		logger.Error(migrationFailedLogMessageConstant, zap.Error(migrationError))
		if errors.Is(migrationError, context.Canceled) || errors.Is(migrationError, context.DeadlineExceeded) {
			return migrationError
		}
		return fmt.Errorf(migrationFailedErrorTemplateConstant, migrationError)
	}

	reporter.Finish(formatter.BuildSuccessStatus())
	consoleLogger.Info(fmt.Sprintf(migrationSummaryTemplateConstant, result.CreatedBookmarks, result.DeletedMarkers))

	return nil
}

func (builder *CommandBuilder) parseOptions(command *cobra.Command, arguments []string) (commandOptions, error) {
	configuration := builder.resolveConfiguration()

	if len(arguments) > 0 {
		configuration.Identifier = strings.TrimSpace(arguments[0])
	}

	flagSet := command.Flags()
	if flagSet.Changed(modeFlagNameConstant) {
		modeValue, _ := flagSet.GetString(modeFlagNameConstant)
		configuration.Mode = Mode(modeValue)
	}
	if flagSet.Changed(assumeYesFlagNameConstant) {
		assumeYesValue, _ := flagSet.GetBool(assumeYesFlagNameConstant)
		configuration.AssumeYes = assumeYesValue
	}
	if flagSet.Changed(accessTokenFlagNameConstant) {
		accessTokenValue, _ := flagSet.GetString(accessTokenFlagNameConstant)
		configuration.AccessToken = strings.TrimSpace(accessTokenValue)
		configuration.AppPassword = ""
	}
	if flagSet.Changed(pageSizeFlagNameConstant) {
		pageSizeValue, _ := flagSet.GetInt(pageSizeFlagNameConstant)
		configuration.PageSize = pageSizeValue
	}
	if flagSet.Changed(pageRetryLimitFlagNameConstant) {
		retryLimitValue, _ := flagSet.GetInt(pageRetryLimitFlagNameConstant)
		configuration.PageRetryLimit = retryLimitValue
	}
	if flagSet.Changed(pageRetryDelayFlagNameConstant) {
		retryDelayValue, _ := flagSet.GetDuration(pageRetryDelayFlagNameConstant)
		configuration.PageRetryDelay = retryDelayValue
	}

	if validationError := configuration.Validate(); validationError != nil {
		return commandOptions{}, fmt.Errorf(configurationInvalidErrorTemplateConstant, validationError)
	}
	if len(configuration.Identifier) == 0 {
		return commandOptions{}, errors.New(identifierMissingMessageConstant)
	}

	contextAccessor := utils.NewCommandContextAccessor()
	runIdentifier, runIdentifierAvailable := contextAccessor.RunIdentifier(command.Context())
	if !runIdentifierAvailable || len(runIdentifier) == 0 {
		runIdentifier = uuid.NewString()
	}

	return commandOptions{configuration: configuration, runIdentifier: runIdentifier}, nil
}

func (builder *CommandBuilder) buildSessionOpener(configuration CommandConfiguration, prompter Prompter, logger *zap.Logger) (SessionOpener, error) {
	settings := atproto.SessionSettings{
		RequestTimeout: configuration.RequestTimeout,
		AppViewProxy:   configuration.AppViewProxy,
		HTTPClient:     builder.HTTPClient,
	}

	if len(configuration.AccessToken) > 0 {
		logger.Debug(sessionOpenedLogMessageConstant, zap.String(logFieldSessionKindConstant, sessionKindAccessTokenConstant))
		authenticator := atproto.TokenAuthenticator{AccessToken: configuration.AccessToken, Settings: settings}
		return SessionOpenerFunc(func(executionContext context.Context, actor identity.Identity) (RepositoryOperations, error) {
			return authenticator.OpenSession(executionContext, actor)
		}), nil
	}

	appPassword := configuration.AppPassword
	if len(appPassword) == 0 {
		enteredPassword, promptError := prompter.ReadSecret(fmt.Sprintf(passwordPromptTemplateConstant, configuration.Identifier))
		if promptError != nil {
			return nil, fmt.Errorf(passwordPromptErrorTemplateConstant, promptError)
		}
		appPassword = enteredPassword
	}

	logger.Debug(sessionOpenedLogMessageConstant, zap.String(logFieldSessionKindConstant, sessionKindAppPasswordConstant))
	authenticator := atproto.PasswordAuthenticator{Password: appPassword, Settings: settings}
	return SessionOpenerFunc(func(executionContext context.Context, actor identity.Identity) (RepositoryOperations, error) {
		return authenticator.OpenSession(executionContext, actor)
	}), nil
}

func (builder *CommandBuilder) buildIdentityResolver(configuration CommandConfiguration) (IdentityResolver, error) {
	httpClient := builder.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: requestTimeoutOrDefault(configuration.RequestTimeout)}
	}

	identityClient, clientError := atproto.NewIdentityClient(configuration.HandleResolverURL, configuration.PLCDirectoryURL, httpClient)
	if clientError != nil {
		return nil, fmt.Errorf(identityClientCreationErrorTemplate, clientError)
	}

	resolver, resolverError := identity.NewResolver(identity.ResolverDependencies{
		HandleResolver:      identityClient,
		DocumentFetcher:     identityClient,
		DefaultHandleSuffix: configuration.DefaultHandleSuffix,
	})
	if resolverError != nil {
		return nil, fmt.Errorf(identityResolverCreationErrorTemplate, resolverError)
	}
	return resolver, nil
}

func (builder *CommandBuilder) resolveLogger() *zap.Logger {
	if builder.LoggerProvider != nil {
		if logger := builder.LoggerProvider(); logger != nil {
			return logger
		}
	}
	return zap.NewNop()
}

func (builder *CommandBuilder) resolveConsoleLogger() *zap.Logger {
	if builder.ConsoleLoggerProvider != nil {
		if logger := builder.ConsoleLoggerProvider(); logger != nil {
			return logger
		}
	}
	return zap.NewNop()
}

func (builder *CommandBuilder) resolvePrompter(command *cobra.Command) Prompter {
	if builder.Prompter != nil {
		return builder.Prompter
	}
	return NewIOPrompter(command.InOrStdin(), command.ErrOrStderr())
}

func (builder *CommandBuilder) resolveService(dependencies ServiceDependencies) (MigrationExecutor, error) {
	if builder.ServiceProvider != nil {
		return builder.ServiceProvider(dependencies)
	}
	return NewService(dependencies)
}

func (builder *CommandBuilder) resolveConfiguration() CommandConfiguration {
	if builder.ConfigurationProvider == nil {
		return DefaultCommandConfiguration()
	}

	provided := builder.ConfigurationProvider()
	return provided.Sanitize()
}

func requestTimeoutOrDefault(requestTimeout time.Duration) time.Duration {
	if requestTimeout <= 0 {
		return DefaultRequestTimeout
	}
	return requestTimeout
}
