package cmd

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/roomrec/internal/config"
	"github.com/jmylchreest/roomrec/pkg/bytesize"
	"github.com/jmylchreest/roomrec/pkg/duration"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
	Long:  `Commands for managing roomrec configuration.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long: `Show the effective configuration in YAML format, after merging the
config file, environment variables and defaults.

Secrets (gateway admin secret, room pin) are masked. You can redirect this
output to a file to create a configuration template:

  roomrec config show > config.yaml

Configuration can be set via:
  - Config file (config.yaml, .roomrec.yaml, /etc/roomrec/config.yaml)
  - Environment variables (ROOMREC_SERVER_PORT, ROOMREC_DATABASE_DSN, etc.)
  - Command-line flags (for some options)

Environment variables use the ROOMREC_ prefix and underscores for nesting.
Example: server.port -> ROOMREC_SERVER_PORT`,
	RunE: runConfigShow,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
}

// toMap converts a config struct to a map, formatting durations and sizes
// for readability and masking fields tagged as secrets.
func toMap(v any) map[string]any {
	result := make(map[string]any)
	val := reflect.ValueOf(v)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)

		key := fieldType.Tag.Get("mapstructure")
		if key == "" {
			key = fieldType.Tag.Get("yaml")
		}
		if key == "" {
			key = strings.ToLower(fieldType.Name)
		}

		if fieldType.Tag.Get("masq") == "secret" {
			if s, ok := field.Interface().(string); ok && s != "" {
				result[key] = "[REDACTED]"
				continue
			}
		}

		switch v := field.Interface().(type) {
		case time.Duration:
			result[key] = duration.Format(v)
		case config.Duration:
			result[key] = duration.Format(time.Duration(v))
		case config.ByteSize:
			result[key] = bytesize.Format(bytesize.Size(v))
		default:
			if field.Kind() == reflect.Struct {
				result[key] = toMap(field.Interface())
			} else {
				result[key] = field.Interface()
			}
		}
	}
	return result
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	yamlData, err := yaml.Marshal(toMap(cfg))
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	fmt.Println("# roomrec configuration")
	fmt.Println("# Values shown are the effective configuration; secrets are masked.")
	fmt.Println()
	fmt.Print(string(yamlData))
	return nil
}
