package riot

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"
)

var (
	ErrInvalidFormat    = errors.New("lockfile text has an invalid format")
	ErrInvalidPort      = errors.New("lockfile port is an invalid number")
	ErrInvalidProcessID = errors.New("lockfile process id is an invalid number")
)

var lockfilePattern = regexp.MustCompile(`([^:]+):(\d+):(\d+):([^:]+):(https?)`)

// Lockfile is the connection record the Riot Client writes while it is running.
// Format: name:pid:port:password:protocol
type Lockfile struct {
	Name      string
	ProcessID uint32
	Port      uint16
	Password  string
	Protocol  Protocol
}

// ParseLockfile parses lockfile text
func ParseLockfile(text string) (*Lockfile, error) {
	m := lockfilePattern.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return nil, ErrInvalidFormat
	}

	pid, err := strconv.ParseUint(m[2], 10, 32)
	if err != nil {
		return nil, ErrInvalidProcessID
	}
	port, err := strconv.ParseUint(m[3], 10, 16)
	if err != nil {
		return nil, ErrInvalidPort
	}

	protocol := ProtocolInsecure
	if m[5] == "https" {
		protocol = ProtocolSecure
	}

	return &Lockfile{
		Name:      m[1],
		ProcessID: uint32(pid),
		Port:      uint16(port),
		Password:  m[4],
		Protocol:  protocol,
	}, nil
}

// Credentials extracts what the client needs to connect
func (l *Lockfile) Credentials() Credentials {
	return Credentials{
		Port:     l.Port,
		Password: l.Password,
		Protocol: l.Protocol,
	}
}

// ReadLockfile reads and parses the lockfile at path
func ReadLockfile(path string) (*Lockfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("lockfile not found: %s: %w", path, err)
		}
		return nil, fmt.Errorf("failed to read lockfile: %w", err)
	}

	lockfile, err := ParseLockfile(string(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse lockfile %s: %w", path, err)
	}
	return lockfile, nil
}

// LockfileSupplier returns a CredentialSupplier backed by the lockfile at path.
// A missing or half-written file reports "not available yet".
func LockfileSupplier(path string, logger *slog.Logger) CredentialSupplier {
	if logger == nil {
		logger = slog.Default()
	}
	return func() (*Credentials, bool) {
		lockfile, err := ReadLockfile(path)
		if err != nil {
			logger.Debug("Lockfile not available",
				"function", "LockfileSupplier",
				"path", path,
				"error", err)
			return nil, false
		}
		creds := lockfile.Credentials()
		return &creds, true
	}
}
