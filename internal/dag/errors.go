package dag

import "fmt"

// ConfigError reports a missing or invalid field in a DAG YAML file.
// Params: source file name, offending field, and optional custom message.
// Returns: user-facing validation error.
type ConfigError struct {
	File    string
	Field   string
	Message string
}

// Error renders the message in the format shown to DAG authors.
// Params: none.
// Returns: "Erro no arquivo <file>: <message>".
func (e *ConfigError) Error() string {
	message := e.Message
	if message == "" {
		message = fmt.Sprintf("O campo `%s` é obrigatório.", e.Field)
	}
	return fmt.Sprintf("Erro no arquivo %s: %s", e.File, message)
}
