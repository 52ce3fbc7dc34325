package types

// SecretString wraps sensitive configuration values (connection strings,
// credentials) so they cannot leak through logs or JSON encoding. Use Reveal
// only at the point where the raw value is handed to a client constructor.
type SecretString string

const redacted = "[REDACTED]"

// String implements fmt.Stringer, always returning the redacted placeholder.
func (s SecretString) String() string { return redacted }

// GoString prevents %#v from leaking the value.
func (s SecretString) GoString() string { return redacted }

// MarshalJSON encodes the redacted placeholder, never the value.
func (s SecretString) MarshalJSON() ([]byte, error) {
	return []byte(`"` + redacted + `"`), nil
}

// Reveal returns the underlying secret value.
func (s SecretString) Reveal() string { return string(s) }

// IsSet reports whether the secret holds a non-empty value.
func (s SecretString) IsSet() bool { return s != "" }
