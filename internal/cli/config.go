package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/icrepl/internal/compiler"
	"github.com/roach88/icrepl/internal/iface"
	"github.com/roach88/icrepl/internal/ir"
)

// Replica URL aliases accepted by --replica and the config file.
var replicaAliases = map[string]string{
	"local": "http://127.0.0.1:4943",
	"ic":    "https://icp0.io",
}

// Config is the session configuration read from a CUE file:
//
//	replica:      "local"
//	identity:     "identity.pem"
//	offline:      false
//	output:       "messages.json"
//	db:           "icrepl.db"
//	effective_id: "rwlgt-iiaaa-aaaaa-aaaaa-cai"
//	workers:      10
//	canisters: ledger: { id: "ryjl3-tyaaa-aaaaa-aaaba-cai", did: "ledger.did" }
//
// Relative paths are resolved against the directory holding the config.
type Config struct {
	Replica     string
	Identity    string
	Offline     bool
	Output      string
	DB          string
	EffectiveID string
	Workers     int
	Canisters   []compiler.Canister

	// Dir is the directory the configuration was loaded from.
	Dir string
}

// LoadError represents an error that occurred during config loading.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeWriteFailed = "E007" // File write error

	// Configuration field errors
	ErrCodeInvalidField    = "E101" // Field has the wrong kind
	ErrCodeInvalidCanister = "E102" // Canister declaration rejected
	ErrCodeInvalidDID      = "E103" // .did file does not compile
	ErrCodeInvalidID       = "E104" // Principal text does not decode
)

// LoadConfig reads a configuration file, or every .cue file of a
// directory loaded as one instance.
func LoadConfig(path string) (*Config, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("config not found: %s", path)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing config: %v", err)}
	}

	var value cue.Value
	var dir string
	if info.IsDir() {
		dir = path
		if value, err = loadDir(path); err != nil {
			return nil, err
		}
	} else {
		dir = filepath.Dir(path)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeLoadFailed, Message: err.Error()}
		}
		value = cuecontext.New().CompileBytes(data, cue.Filename(path))
		if err := value.Err(); err != nil {
			return nil, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}
		}
	}
	return decodeConfig(value, dir)
}

func loadDir(dir string) (cue.Value, error) {
	cueFiles, err := FindCUEFiles(dir)
	if err != nil {
		return cue.Value{}, &LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}
	}
	if len(cueFiles) == 0 {
		return cue.Value{}, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}
	}
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return cue.Value{}, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return cue.Value{}, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}
	}
	value := cuecontext.New().BuildInstance(inst)
	if err := value.Err(); err != nil {
		return cue.Value{}, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}
	}
	return value, nil
}

func decodeConfig(v cue.Value, dir string) (*Config, error) {
	cfg := &Config{Dir: dir}
	strs := []struct {
		name string
		dst  *string
	}{
		{"replica", &cfg.Replica},
		{"identity", &cfg.Identity},
		{"output", &cfg.Output},
		{"db", &cfg.DB},
		{"effective_id", &cfg.EffectiveID},
	}
	for _, f := range strs {
		fv := v.LookupPath(cue.ParsePath(f.name))
		if !fv.Exists() {
			continue
		}
		s, err := fv.String()
		if err != nil {
			return nil, &LoadError{Code: ErrCodeInvalidField, Message: fmt.Sprintf("%s must be a string", f.name), Pos: fv.Pos()}
		}
		*f.dst = s
	}
	if fv := v.LookupPath(cue.ParsePath("offline")); fv.Exists() {
		b, err := fv.Bool()
		if err != nil {
			return nil, &LoadError{Code: ErrCodeInvalidField, Message: "offline must be a bool", Pos: fv.Pos()}
		}
		cfg.Offline = b
	}
	if fv := v.LookupPath(cue.ParsePath("workers")); fv.Exists() {
		n, err := fv.Int64()
		if err != nil || n < 1 {
			return nil, &LoadError{Code: ErrCodeInvalidField, Message: "workers must be a positive integer", Pos: fv.Pos()}
		}
		cfg.Workers = int(n)
	}
	if cfg.EffectiveID != "" {
		if _, err := ir.DecodePrincipal(cfg.EffectiveID); err != nil {
			return nil, &LoadError{Code: ErrCodeInvalidID, Message: fmt.Sprintf("effective_id: %v", err)}
		}
	}

	canisters, err := compiler.CompileCanisters(v.LookupPath(cue.ParsePath("canisters")))
	if err != nil {
		return nil, convertCompileError(err)
	}
	for i := range canisters {
		if canisters[i].DID != "" {
			canisters[i].DID = cfg.resolve(canisters[i].DID)
		}
	}
	cfg.Canisters = canisters
	cfg.Identity = cfg.resolve(cfg.Identity)
	cfg.Output = cfg.resolve(cfg.Output)
	cfg.DB = cfg.resolve(cfg.DB)
	return cfg, nil
}

// resolve makes a relative path relative to the config directory.
func (c *Config) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || c.Dir == "" {
		return path
	}
	return filepath.Join(c.Dir, path)
}

// ReplicaURL expands replica aliases.
func ReplicaURL(replica string) string {
	if url, ok := replicaAliases[replica]; ok {
		return url
	}
	return replica
}

// Interfaces compiles the declared canister interfaces, keyed by
// principal text. Aliases without a did or inline methods are skipped.
func (c *Config) Interfaces() (iface.Static, error) {
	out := iface.Static{}
	for _, can := range c.Canisters {
		switch {
		case can.DID != "":
			info, err := iface.LoadDID(can.DID)
			if err != nil {
				return nil, &LoadError{Code: ErrCodeInvalidDID, Message: fmt.Sprintf("canisters.%s: %v", can.Name, err)}
			}
			out[can.ID.String()] = info
		case can.Interface != nil:
			out[can.ID.String()] = &iface.CanisterInfo{Interface: can.Interface}
		}
	}
	return out, nil
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    ErrCodeInvalidCanister,
			Message: fmt.Sprintf("canisters.%s: %s", compileErr.Field, compileErr.Message),
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("canisters: %v", err)}
}
