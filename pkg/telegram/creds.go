package telegram

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"tg-scraper/pkg/utils"
)

// Credentials identify the API application and the account to sign in.
// api_id and api_hash come from my.telegram.org.
type Credentials struct {
	APIID   int    `json:"api_id"`
	APIHash string `json:"api_hash"`
	Phone   string `json:"phone"`
}

// Environment variables overriding file values.
const (
	EnvAPIID   = "TG_API_ID"
	EnvAPIHash = "TG_API_HASH"
	EnvPhone   = "TG_PHONE"
)

// LoadCredentials reads the credentials file and applies environment
// overrides. A missing file is fine when the environment supplies every
// field; a .env file is honored when present, but real environment
// variables win over it.
func LoadCredentials(path string) (Credentials, error) {
	_ = godotenv.Load()

	var creds Credentials
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &creds); err != nil {
			return Credentials{}, fmt.Errorf("%w: parsing '%s': %w", utils.ErrCredentials, path, err)
		}
	case os.IsNotExist(err):
		// Environment-only setup
	default:
		return Credentials{}, fmt.Errorf("%w: reading '%s': %w", utils.ErrCredentials, path, err)
	}

	if v := os.Getenv(EnvAPIID); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil {
			return Credentials{}, fmt.Errorf("%w: %s must be numeric, got '%s'", utils.ErrCredentials, EnvAPIID, v)
		}
		creds.APIID = id
	}
	if v := os.Getenv(EnvAPIHash); v != "" {
		creds.APIHash = v
	}
	if v := os.Getenv(EnvPhone); v != "" {
		creds.Phone = v
	}

	if err := creds.Validate(); err != nil {
		return Credentials{}, err
	}
	return creds, nil
}

// Validate reports every missing field at once.
func (c Credentials) Validate() error {
	var missing []string
	if c.APIID == 0 {
		missing = append(missing, "api_id")
	}
	if c.APIHash == "" {
		missing = append(missing, "api_hash")
	}
	if c.Phone == "" {
		missing = append(missing, "phone")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", utils.ErrCredentials, strings.Join(missing, ", "))
	}
	return nil
}
