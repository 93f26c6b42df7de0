package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wrenlabs/gadgetrun/internal/config"
)

// buildDoctorCmd creates the "doctor" command for config and credential
// validation, grounded on the teacher's commands_doctor.go shape.
func buildDoctorCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Validate configuration and report provider credential status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "gadgetrun.yaml", "path to the runtime config file")
	return cmd
}

func runDoctor(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Printf("config: FAIL (%v)\n", err)
		return err
	}
	fmt.Printf("config: OK (%s)\n", configPath)

	report := []struct {
		name string
		ok   bool
	}{
		{"anthropic", cfg.Providers.Anthropic.APIKey != ""},
		{"openai", cfg.Providers.OpenAI.APIKey != ""},
		{"gemini", cfg.Providers.Gemini.APIKey != ""},
		{"bedrock", cfg.Providers.Bedrock.Region != ""},
	}

	anyConfigured := false
	for _, r := range report {
		status := "not configured"
		if r.ok {
			status = "configured"
			anyConfigured = true
		}
		fmt.Printf("provider %-10s %s\n", r.name, status)
	}
	if cfg.Providers.Default == "" {
		fmt.Println("providers.default: WARN (no default provider:model descriptor set)")
	} else if !anyConfigured {
		fmt.Printf("providers.default: WARN (%q set but no provider has credentials)\n", cfg.Providers.Default)
	} else {
		fmt.Printf("providers.default: %s\n", cfg.Providers.Default)
	}

	if len(cfg.Gadgets.AllowList) == 0 {
		fmt.Println("gadgets.allow_list: empty (every gadget in a loaded manifest will be registered)")
	} else {
		fmt.Printf("gadgets.allow_list: %d gadget(s) allowed\n", len(cfg.Gadgets.AllowList))
	}

	switch cfg.Media.Backend {
	case "local":
		if cfg.Media.LocalPath == "" {
			fmt.Println("media.local_path: WARN (backend is \"local\" but no path is set)")
		} else if _, err := os.Stat(cfg.Media.LocalPath); err != nil {
			fmt.Printf("media.local_path: WARN (%s does not exist yet, it will be created)\n", cfg.Media.LocalPath)
		}
	case "s3":
		if cfg.Media.S3.Bucket == "" {
			fmt.Println("media.s3.bucket: FAIL (backend is \"s3\" but no bucket is set)")
			return fmt.Errorf("doctor: invalid s3 media config")
		}
	}

	if !anyConfigured {
		return fmt.Errorf("doctor: no provider has credentials configured")
	}
	return nil
}
