package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	GeminiAPIKey string
	MapsAPIKey   string
	DatabaseURL  string
	HTTPPort     string
	LogLevel     string
	JWTSecret    string

	// MaxToolRounds bounds how many model/tool round-trips a single turn may take.
	MaxToolRounds int

	// MatchIncludeUnzoned includes providers without a service-zone geometry in
	// search results instead of filtering them out.
	MatchIncludeUnzoned bool

	// MatchRequireDate rejects provider searches that omit a travel date. When
	// false (the default), undated searches match a provider's windows on any
	// day of the week.
	MatchRequireDate bool
}

var AppConfig Config

func LoadConfig() {
	err := godotenv.Load() // Load .env file if it exists
	if err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	AppConfig = Config{
		GeminiAPIKey:        getEnv("GEMINI_API_KEY", ""),
		MapsAPIKey:          getEnv("MAPS_API_KEY", ""),
		DatabaseURL:         getEnv("DATABASE_URL", "optimat.db"),
		HTTPPort:            getEnv("HTTP_PORT", "8080"),
		LogLevel:            getEnv("LOG_LEVEL", "INFO"),
		JWTSecret:           getEnv("JWT_SECRET", ""),
		MaxToolRounds:       getEnvAsInt("MAX_TOOL_ROUNDS", 5),
		MatchIncludeUnzoned: getEnvAsBool("MATCH_INCLUDE_UNZONED", false),
		MatchRequireDate:    getEnvAsBool("MATCH_REQUIRE_DATE", false),
	}

	if AppConfig.GeminiAPIKey == "" {
		log.Fatal("GEMINI_API_KEY environment variable is required")
	}

	if AppConfig.MapsAPIKey == "" {
		log.Fatal("MAPS_API_KEY environment variable is required")
	}

	if AppConfig.JWTSecret == "" {
		log.Fatal("JWT_SECRET environment variable is required")
	}
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}
