package main

import (
	"errors"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Environment variables that provide defaults for the command line flags.
const (
	envCompression = "MZPARQUET_COMPRESSION"
	envRowGroup    = "MZPARQUET_ROWGROUP"
	envLogFile     = "MZPARQUET_LOGFILE"
	envDebug       = "MZPARQUET_DEBUG"
	envJobs        = "MZPARQUET_JOBS"
)

// defaults are the flag defaults after reading the environment.
type defaults struct {
	compression string
	rowGroup    int
	logFile     string
	debug       bool
	jobs        int
}

// loadDefaults reads an optional .env file from the working directory
// and returns the flag defaults. Variables already set in the
// environment win over the file.
func loadDefaults() (defaults, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return defaults{}, err
	}
	return defaults{
		compression: getEnv(envCompression, "snappy"),
		rowGroup:    getEnvInt(envRowGroup, 0),
		logFile:     getEnv(envLogFile, ""),
		debug:       getEnv(envDebug, "") == `1`,
		jobs:        getEnvInt(envJobs, 0),
	}, nil
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	v, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return v
}
