package optname

const (
	APIKey             = "api-key"
	ChunkSize          = "chunk-size"
	Config             = "config"
	ConnTimeout        = "connect-timeout"
	Duplicate          = "duplicate"
	EnvFile            = "env-file"
	Extract            = "extract"
	Filename           = "filename"
	Header             = "header"
	LoggingLevel       = "log-level"
	MaxConcurrentFiles = "max-concurrent-files"
	OutputDir          = "output-dir"
	PIDFile            = "pid-file"
	ProgressBar        = "progress-bar"
	Proxy              = "proxy"
	Resolve            = "resolve"
	Retries            = "retries"
	Timeout            = "timeout"
	TLSVerify          = "tls-verify"
	Verbose            = "verbose"
)
