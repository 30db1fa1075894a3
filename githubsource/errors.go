package githubsource

import "github.com/ghillie/ghillie/ghillieerr"

// NewHTTPError builds the client's http-error failure mode.
func NewHTTPError(statusCode int, message string) error {
	return &ghillieerr.APIError{StatusCode: statusCode, Message: message}
}

// NewGraphQLError builds the client's body-carried graphql-errors failure
// mode.
func NewGraphQLError(messages []string) error {
	return &ghillieerr.GraphQLError{Messages: messages}
}

// NewMissingFieldError builds the client's response-shape failure mode.
func NewMissingFieldError(path string) error {
	return &ghillieerr.ResponseShapeError{Missing: path}
}

// NewConfigError builds the client's config failure mode (missing/empty
// credential).
func NewConfigError(field, message string) error {
	return &ghillieerr.ConfigError{Field: field, Message: message}
}
