package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	RedisURL string

	ServerPort string

	JWTSecret         string
	AccessTokenMaxAge int

	// Circle feed knobs. FeedChunkSize is the containment ceiling of the post
	// store: the maximum number of author ids one query may name. FeedMaxChunks
	// caps fan-out cost; a follow set larger than FeedChunkSize*FeedMaxChunks is
	// served with incomplete coverage (flagged on the page, not an error).
	FeedChunkSize    int
	FeedMaxChunks    int
	FeedPageSize     int
	FeedChunkTimeout time.Duration
	FeedSessionTTL   time.Duration

	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string
	R2PublicURL       string
}

func LoadConfig() (*Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found or error loading it, relying on environment variables")
	}

	accessTokenMaxAge := intEnv("ACCESS_TOKEN_MAX_AGE", 900)

	serverPort := os.Getenv("SERVER_PORT")
	if serverPort == "" {
		serverPort = "8080"
	}

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		redisURL = "redis://localhost:6379"
	}

	return &Config{
		DBHost:     os.Getenv("DB_HOST"),
		DBPort:     os.Getenv("DB_PORT"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),

		RedisURL: redisURL,

		ServerPort: serverPort,

		JWTSecret:         os.Getenv("JWT_SECRET"),
		AccessTokenMaxAge: accessTokenMaxAge,

		FeedChunkSize:    intEnv("FEED_CHUNK_SIZE", 10),
		FeedMaxChunks:    intEnv("FEED_MAX_CHUNKS", 10),
		FeedPageSize:     intEnv("FEED_PAGE_SIZE", 10),
		FeedChunkTimeout: durationEnv("FEED_CHUNK_TIMEOUT", 15*time.Second),
		FeedSessionTTL:   durationEnv("FEED_SESSION_TTL", 30*time.Minute),

		R2AccountID:       os.Getenv("R2_ACCOUNT_ID"),
		R2AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
		R2SecretAccessKey: os.Getenv("R2_SECRET_ACCESS_KEY"),
		R2BucketName:      os.Getenv("R2_BUCKET_NAME"),
		R2PublicURL:       os.Getenv("R2_PUBLIC_URL"),
	}, nil
}

func intEnv(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
