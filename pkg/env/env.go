// Package env keeps names of environment variables with special significance to
// jobu.
package env

// Environment variables with special significance to jobu.
//
// The JOBU_*_PIPE, JOBU_SESSION_ID and JOBU_RESULT_FILE variables are set by
// jobu for the engine process; the others are read by jobu.
const (
	HISTFILE             = "HISTFILE"
	HOME                 = "HOME"
	JOBU_CONFIG_DIR      = "JOBU_CONFIG_DIR"
	JOBU_ENGINE          = "JOBU_ENGINE"
	JOBU_REQUEST_PIPE    = "JOBU_REQUEST_PIPE"
	JOBU_RESPONSE_PIPE   = "JOBU_RESPONSE_PIPE"
	JOBU_RESULT_FILE     = "JOBU_RESULT_FILE"
	JOBU_SESSION_ID      = "JOBU_SESSION_ID"
	JOBU_TEST_TIME_SCALE = "JOBU_TEST_TIME_SCALE"
	PATH                 = "PATH"
	PS1                  = "PS1"
	PWD                  = "PWD"
	SHLVL                = "SHLVL"
	XDG_CONFIG_HOME      = "XDG_CONFIG_HOME"
	XDG_DATA_HOME        = "XDG_DATA_HOME"
	XDG_RUNTIME_DIR      = "XDG_RUNTIME_DIR"
)
