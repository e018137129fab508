package circuitbreaker

import (
	"os"
	"strconv"
	"time"
)

// EnvConfig is a breaker configuration resolved from CB_<PREFIX>_* variables.
type EnvConfig struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
	SuccessThreshold uint32
}

// GetLLMConfig covers agent, mediator and verifier backends.
func GetLLMConfig() EnvConfig {
	return fromEnv("LLM", EnvConfig{
		MaxRequests:      3,
		Interval:         60 * time.Second,
		Timeout:          20 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
	})
}

// GetHTTPConfig covers tool traffic such as web_fetch.
func GetHTTPConfig() EnvConfig {
	return fromEnv("HTTP", EnvConfig{
		MaxRequests:      5,
		Interval:         30 * time.Second,
		Timeout:          15 * time.Second,
		FailureThreshold: 3,
		SuccessThreshold: 2,
	})
}

// GetRedisConfig covers the event stream mirror.
func GetRedisConfig() EnvConfig {
	return fromEnv("REDIS", EnvConfig{
		MaxRequests:      5,
		Interval:         30 * time.Second,
		Timeout:          15 * time.Second,
		FailureThreshold: 3,
		SuccessThreshold: 2,
	})
}

// ToConfig converts to a breaker Config. OnStateChange is set by the wrappers.
func (c EnvConfig) ToConfig() Config {
	return Config{
		MaxRequests:      c.MaxRequests,
		Interval:         c.Interval,
		Timeout:          c.Timeout,
		FailureThreshold: c.FailureThreshold,
		SuccessThreshold: c.SuccessThreshold,
	}
}

func fromEnv(prefix string, def EnvConfig) EnvConfig {
	p := "CB_" + prefix + "_"
	return EnvConfig{
		MaxRequests:      getEnvUint32(p+"MAX_REQUESTS", def.MaxRequests),
		Interval:         getEnvDuration(p+"INTERVAL", def.Interval),
		Timeout:          getEnvDuration(p+"TIMEOUT", def.Timeout),
		FailureThreshold: getEnvUint32(p+"FAILURE_THRESHOLD", def.FailureThreshold),
		SuccessThreshold: getEnvUint32(p+"SUCCESS_THRESHOLD", def.SuccessThreshold),
	}
}

func getEnvUint32(key string, defaultValue uint32) uint32 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseUint(val, 10, 32); err == nil {
			return uint32(parsed)
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return defaultValue
}
