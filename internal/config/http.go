package config

type HTTP struct {
	Port             uint32   `env:"PORT" envDefault:"3000"`
	Swagger          bool     `env:"HTTP_SWAGGER" envDefault:"true"`
	ValidateRequests bool     `env:"HTTP_VALIDATE_REQUESTS" envDefault:"true"`
	AllowedOrigins   []string `env:"HTTP_CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
}
