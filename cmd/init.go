package cmd

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"prsheet/internal/config"
	"prsheet/internal/git"
	"prsheet/internal/sheets"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize prsheet configuration",
	Long:  `Set up the Google Sheet, credentials and repositories for prsheet.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(configPath)
		if err != nil {
			fatalf("failed to load config: %v", err)
		}
		reader := bufio.NewReader(os.Stdin)
		ask := func(prompt, def string) string {
			if def != "" {
				fmt.Printf("%s (default: %s): ", prompt, def)
			} else {
				fmt.Printf("%s: ", prompt)
			}
			s, _ := reader.ReadString('\n')
			if s = strings.TrimSpace(s); s == "" {
				return def
			}
			return s
		}

		sheetID, err := sheets.ExtractSheetID(ask("Enter Google Sheet URL or ID", cfg.Sheet.ID))
		if err != nil {
			fatalf("Invalid Sheet URL/ID: %v", err)
		}
		cfg.Sheet.ID = sheetID

		credPath := ask("Enter path to credentials.json", cfg.Sheet.CredentialsPath)
		absPath, err := filepath.Abs(credPath)
		if err != nil {
			fatalf("Invalid path: %v", err)
		}
		cfg.Sheet.CredentialsPath = absPath
		cfg.Sheet.Name = ask("Enter Sheet Name", cfg.Sheet.Name)

		if teams := ask("Enter team order, comma separated", strings.Join(cfg.Teams, ",")); teams != "" {
			cfg.Teams = splitList(teams)
		}

		fmt.Print("\n--- GitHub ---\n")
		suggested := strings.Join(cfg.GitHub.Repos, ",")
		if suggested == "" {
			if repo, err := git.DetectRepoName(""); err == nil {
				suggested = repo
			}
		}
		cfg.GitHub.Repos = splitList(ask("Enter repositories as owner/name, comma separated", suggested))
		if len(cfg.GitHub.Repos) > 0 {
			cfg.GitHub.Token = ask("Enter GitHub Token (press Enter to skip)", cfg.GitHub.Token)
		}

		fmt.Print("\n--- Optional: GitLab ---\n")
		cfg.GitLab.Projects = splitList(ask("Enter GitLab projects, comma separated (press Enter to skip)", strings.Join(cfg.GitLab.Projects, ",")))
		if len(cfg.GitLab.Projects) > 0 {
			cfg.GitLab.Token = ask("Enter GitLab Token", cfg.GitLab.Token)
		}

		if err := config.Validate(cfg); err != nil {
			fatalf("Invalid configuration: %v", err)
		}
		if err := config.Save(configPath, cfg); err != nil {
			fatalf("Failed to save config: %v", err)
		}

		fmt.Println("🏗️  Configuration saved successfully! Run 'prsheet sync --dry-run' to preview.")
	},
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func init() {
	rootCmd.AddCommand(initCmd)
}
