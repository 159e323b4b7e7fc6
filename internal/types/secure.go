package types

// redacted is the replacement emitted wherever a secret would otherwise be
// printed or serialized.
const redacted = "***REDACTED***"

var redactedJSON = []byte(`"***REDACTED***"`)

// SecretString holds a sensitive configuration value (webhook secret,
// database URL) and refuses to expose it through fmt or JSON. Call Unmask()
// at the single point where the raw value is genuinely needed, e.g. when
// keying the HMAC or opening the connection pool.
type SecretString string

// String satisfies fmt.Stringer with the redacted placeholder so %v/%s
// formatting never leaks the value.
func (s SecretString) String() string {
	return redacted
}

// MarshalJSON serializes to the redacted placeholder, keeping secrets out of
// structured logs and config dumps.
func (s SecretString) MarshalJSON() ([]byte, error) {
	return redactedJSON, nil
}

// Unmask returns the raw value. Call sites should be few and auditable.
func (s SecretString) Unmask() string {
	return string(s)
}
