package migrate

import (
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

const (
	// DefaultHandleResolverURL hosts com.atproto.identity.resolveHandle.
	DefaultHandleResolverURL = "https://bsky.social"
	// DefaultPLCDirectoryURL serves did:plc documents.
	DefaultPLCDirectoryURL = "https://plc.directory"
	// DefaultAppViewProxy routes bookmark creation to the Bluesky AppView.
	DefaultAppViewProxy = "did:web:api.bsky.app#bsky_appview"
	// DefaultSavedPostsURL is where the user can review saved posts.
	DefaultSavedPostsURL = "https://bsky.app/saved"
	// DefaultHandleSuffix completes bare handles.
	DefaultHandleSuffix = ".bsky.social"
	// DefaultRequestTimeout bounds every repository call.
	DefaultRequestTimeout = 30 * time.Second

	configurationKeyIdentifierConstant          = "identifier"
	configurationKeyAppPasswordConstant         = "app_password"
	configurationKeyAccessTokenConstant         = "access_token"
	configurationKeyModeConstant                = "mode"
	configurationKeyPageSizeConstant            = "page_size"
	configurationKeyPageRetryLimitConstant      = "page_retry_limit"
	configurationKeyPageRetryDelayConstant      = "page_retry_delay"
	configurationKeyHandleResolverURLConstant   = "handle_resolver_url"
	configurationKeyPLCDirectoryURLConstant     = "plc_directory_url"
	configurationKeyDefaultHandleSuffixConstant = "default_handle_suffix"
	configurationKeyAppViewProxyConstant        = "appview_proxy"
	configurationKeyRequestTimeoutConstant      = "request_timeout"
	configurationKeySavedPostsURLConstant       = "saved_posts_url"
	configurationKeyAssumeYesConstant           = "assume_yes"
	configurationKeySeparatorConstant           = "."
	credentialsExclusiveMessageConstant         = "app_password and access_token are mutually exclusive"
)

// CommandConfiguration captures persisted configuration for the migration command.
type CommandConfiguration struct {
	Identifier          string        `mapstructure:"identifier"`
	AppPassword         string        `mapstructure:"app_password"`
	AccessToken         string        `mapstructure:"access_token"`
	Mode                Mode          `mapstructure:"mode"`
	PageSize            int           `mapstructure:"page_size"`
	PageRetryLimit      int           `mapstructure:"page_retry_limit"`
	PageRetryDelay      time.Duration `mapstructure:"page_retry_delay"`
	HandleResolverURL   string        `mapstructure:"handle_resolver_url"`
	PLCDirectoryURL     string        `mapstructure:"plc_directory_url"`
	DefaultHandleSuffix string        `mapstructure:"default_handle_suffix"`
	AppViewProxy        string        `mapstructure:"appview_proxy"`
	RequestTimeout      time.Duration `mapstructure:"request_timeout"`
	SavedPostsURL       string        `mapstructure:"saved_posts_url"`
	AssumeYes           bool          `mapstructure:"assume_yes"`
}

// DefaultCommandConfiguration returns baseline configuration values for the migration.
func DefaultCommandConfiguration() CommandConfiguration {
	return CommandConfiguration{
		Mode:                ModeKeep,
		PageSize:            DefaultPageSize,
		HandleResolverURL:   DefaultHandleResolverURL,
		PLCDirectoryURL:     DefaultPLCDirectoryURL,
		DefaultHandleSuffix: DefaultHandleSuffix,
		AppViewProxy:        DefaultAppViewProxy,
		RequestTimeout:      DefaultRequestTimeout,
		SavedPostsURL:       DefaultSavedPostsURL,
	}
}

// DefaultConfigurationValues flattens the defaults into viper keys below prefix.
func DefaultConfigurationValues(prefix string) map[string]any {
	defaults := DefaultCommandConfiguration()
	values := map[string]any{
		configurationKeyIdentifierConstant:          defaults.Identifier,
		configurationKeyAppPasswordConstant:         defaults.AppPassword,
		configurationKeyAccessTokenConstant:         defaults.AccessToken,
		configurationKeyModeConstant:                string(defaults.Mode),
		configurationKeyPageSizeConstant:            defaults.PageSize,
		configurationKeyPageRetryLimitConstant:      defaults.PageRetryLimit,
		configurationKeyPageRetryDelayConstant:      defaults.PageRetryDelay.String(),
		configurationKeyHandleResolverURLConstant:   defaults.HandleResolverURL,
		configurationKeyPLCDirectoryURLConstant:     defaults.PLCDirectoryURL,
		configurationKeyDefaultHandleSuffixConstant: defaults.DefaultHandleSuffix,
		configurationKeyAppViewProxyConstant:        defaults.AppViewProxy,
		configurationKeyRequestTimeoutConstant:      defaults.RequestTimeout.String(),
		configurationKeySavedPostsURLConstant:       defaults.SavedPostsURL,
		configurationKeyAssumeYesConstant:           defaults.AssumeYes,
	}

	trimmedPrefix := strings.TrimSpace(prefix)
	if len(trimmedPrefix) == 0 {
		return values
	}

	prefixed := make(map[string]any, len(values))
	for key, value := range values {
		prefixed[trimmedPrefix+configurationKeySeparatorConstant+key] = value
	}
	return prefixed
}

// Sanitize trims configured values and fills unset ones with defaults.
func (configuration CommandConfiguration) Sanitize() CommandConfiguration {
	defaults := DefaultCommandConfiguration()
	sanitized := configuration

	sanitized.Identifier = strings.TrimSpace(configuration.Identifier)
	sanitized.AppPassword = strings.TrimSpace(configuration.AppPassword)
	sanitized.AccessToken = strings.TrimSpace(configuration.AccessToken)
	sanitized.Mode = Mode(strings.ToLower(strings.TrimSpace(string(configuration.Mode))))
	sanitized.HandleResolverURL = fallbackString(configuration.HandleResolverURL, defaults.HandleResolverURL)
	sanitized.PLCDirectoryURL = fallbackString(configuration.PLCDirectoryURL, defaults.PLCDirectoryURL)
	sanitized.DefaultHandleSuffix = fallbackString(configuration.DefaultHandleSuffix, defaults.DefaultHandleSuffix)
	sanitized.AppViewProxy = strings.TrimSpace(configuration.AppViewProxy)
	sanitized.SavedPostsURL = fallbackString(configuration.SavedPostsURL, defaults.SavedPostsURL)

	if len(sanitized.Mode) == 0 {
		sanitized.Mode = defaults.Mode
	}
	if sanitized.PageSize == 0 {
		sanitized.PageSize = defaults.PageSize
	}
	if sanitized.RequestTimeout == 0 {
		sanitized.RequestTimeout = defaults.RequestTimeout
	}

	return sanitized
}

// Validate reports configuration values the migration cannot run with.
func (configuration CommandConfiguration) Validate() error {
	return validation.ValidateStruct(&configuration,
		validation.Field(&configuration.Mode, validation.In(ModeKeep, ModeDelete)),
		validation.Field(&configuration.PageSize, validation.Min(1), validation.Max(DefaultPageSize)),
		validation.Field(&configuration.PageRetryLimit, validation.Min(0)),
		validation.Field(&configuration.PageRetryDelay, validation.Min(time.Duration(0))),
		validation.Field(&configuration.RequestTimeout, validation.Min(time.Duration(0))),
		validation.Field(&configuration.HandleResolverURL, validation.Required, is.URL),
		validation.Field(&configuration.PLCDirectoryURL, validation.Required, is.URL),
		validation.Field(&configuration.SavedPostsURL, validation.Required, is.URL),
		validation.Field(&configuration.AccessToken, validation.When(
			len(configuration.AppPassword) > 0,
			validation.Empty.Error(credentialsExclusiveMessageConstant),
		)),
	)
}

func fallbackString(value string, fallback string) string {
	trimmedValue := strings.TrimSpace(value)
	if len(trimmedValue) == 0 {
		return fallback
	}
	return trimmedValue
}
