package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	msconfig "github.com/example/mockgw/config"
)

// OrderedConfig controls key ordering when re-serializing a converted
// config: schema first, then server, then handlers/ws_handlers, rather
// than whatever order msconfig.Config's Go field order or the source
// file happened to use.
type OrderedConfig struct {
	Schema     string      `json:"$schema,omitempty" yaml:"$schema,omitempty"`
	Server     interface{} `json:"server" yaml:"server"`
	Handlers   interface{} `json:"handlers" yaml:"handlers"`
	WSHandlers interface{} `json:"ws_handlers,omitempty" yaml:"ws_handlers,omitempty"`
}

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert a config file between YAML and JSON",
	Run: func(cmd *cobra.Command, args []string) {
		if inputFile == "" || outputFile == "" {
			fmt.Println("Both --input and --output are required")
			os.Exit(1)
		}

		cfgData, err := os.ReadFile(inputFile)
		if err != nil {
			fmt.Printf("[ERROR] Failed to read input file: %v\n", err)
			os.Exit(1)
		}

		var cfg msconfig.Config
		ext := strings.ToLower(filepath.Ext(inputFile))
		switch ext {
		case ".yaml", ".yml":
			if err := yaml.Unmarshal(cfgData, &cfg); err != nil {
				fmt.Printf("[ERROR] Failed to parse YAML: %v\n", err)
				os.Exit(1)
			}
		case ".json":
			if err := json.Unmarshal(cfgData, &cfg); err != nil {
				fmt.Printf("[ERROR] Failed to parse JSON: %v\n", err)
				os.Exit(1)
			}
		default:
			fmt.Println("[ERROR] Unsupported input file format. Use .yaml/.yml or .json")
			os.Exit(1)
		}

		var outData []byte
		outExt := strings.ToLower(filepath.Ext(outputFile))

		ordered := OrderedConfig{
			Schema:     cfg.Schema,
			Server:     removeEmptyFields(toGenericMap(cfg.Server)),
			Handlers:   removeEmptyFields(toGenericMap(cfg.Handlers)),
			WSHandlers: removeEmptyFields(toGenericMap(cfg.WSHandlers)),
		}

		switch outExt {
		case ".yaml", ".yml":
			outData, err = yaml.Marshal(ordered)
			if err != nil {
				fmt.Printf("[ERROR] Failed to marshal to YAML: %v\n", err)
				os.Exit(1)
			}
		case ".json":
			outData, err = json.MarshalIndent(ordered, "", "  ")
			if err != nil {
				fmt.Printf("[ERROR] Failed to marshal to JSON: %v\n", err)
				os.Exit(1)
			}
		default:
			fmt.Println("[ERROR] Unsupported output file format. Use .yaml/.yml or .json")
			os.Exit(1)
		}

		outDir := filepath.Dir(outputFile)
		if _, err := os.Stat(outDir); os.IsNotExist(err) {
			if err := os.MkdirAll(outDir, 0755); err != nil {
				fmt.Printf("[ERROR] Failed to create output directory: %v\n", err)
				os.Exit(1)
			}
		}

		if err := os.WriteFile(outputFile, outData, 0644); err != nil {
			fmt.Printf("[ERROR] Failed to write output file: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Successfully converted '%s' -> '%s'\n", inputFile, outputFile)
	},
}

// toGenericMap round-trips v through JSON so removeEmptyFields (which only
// understands map[string]interface{}/[]interface{}) can walk a typed
// msconfig struct the same way it walked the teacher's untyped config.
func toGenericMap(v interface{}) interface{} {
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return v
	}
	return generic
}

// removeEmptyFields strips zero-value strings/maps/slices recursively, so a
// converted config doesn't carry every unset field's JSON zero value across
// formats.
func removeEmptyFields(i interface{}) interface{} {
	switch v := i.(type) {
	case map[string]interface{}:
		clean := make(map[string]interface{})
		for key, val := range v {
			val = removeEmptyFields(val)
			if val != nil {
				clean[key] = val
			}
		}
		if len(clean) == 0 {
			return nil
		}
		return clean
	case []interface{}:
		var clean []interface{}
		for _, val := range v {
			val = removeEmptyFields(val)
			if val != nil {
				clean = append(clean, val)
			}
		}
		if len(clean) == 0 {
			return nil
		}
		return clean
	case string:
		if v == "" {
			return nil
		}
		return v
	case nil:
		return nil
	default:
		return v
	}
}

var inputFile string
var outputFile string

func init() {
	convertCmd.Flags().StringVarP(&inputFile, "input", "i", "", "Input config file (yaml/json)")
	convertCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output config file (yaml/json)")
}
