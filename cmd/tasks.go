package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/assetforge/internal/logging"
	"github.com/conneroisu/assetforge/internal/pipeline"
	"github.com/conneroisu/assetforge/internal/services"
)

var tasksCmd = &cobra.Command{
	Use:     "tasks",
	Aliases: []string{"t"},
	Short:   "List the tasks and their prerequisites",
	Long: `List every task with its description and the tasks it runs first.

Examples:
  assetforge tasks                   # Table
  assetforge tasks -o json           # JSON for tooling`,
	Args: cobra.NoArgs,
	RunE: runTasksList,
}

var tasksFlags *StandardFlags

func init() {
	rootCmd.AddCommand(tasksCmd)
	tasksFlags = AddStandardFlags(tasksCmd, "output")
}

// taskInfo is one listed task.
type taskInfo struct {
	Name         string   `json:"name" yaml:"name"`
	Description  string   `json:"description" yaml:"description"`
	Dependencies []string `json:"dependencies" yaml:"dependencies"`
}

func runTasksList(cmd *cobra.Command, _ []string) error {
	if err := tasksFlags.ValidateFlags(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	forge, err := services.NewForge(cfg, logging.NewNopLogger())
	if err != nil {
		return err
	}

	tasks := listTasks(forge.Graph())
	out := cmd.OutOrStdout()
	switch strings.ToLower(tasksFlags.OutputFormat) {
	case "json":
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(tasks)
	case "yaml":
		encoder := yaml.NewEncoder(out)
		encoder.SetIndent(2)
		if err := encoder.Encode(tasks); err != nil {
			return err
		}
		return encoder.Close()
	default:
		return writeTaskTable(out, tasks)
	}
}

func listTasks(graph *pipeline.Graph) []taskInfo {
	tasks := make([]taskInfo, 0, graph.Len())
	for task := range graph.Tasks() {
		deps := task.Dependencies
		if deps == nil {
			deps = []string{}
		}
		tasks = append(tasks, taskInfo{
			Name:         task.Name,
			Description:  task.Description,
			Dependencies: deps,
		})
	}
	return tasks
}

func writeTaskTable(out io.Writer, tasks []taskInfo) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	title := cases.Title(language.English)
	fmt.Fprintf(w, "%s\t%s\t%s\n", title.String("name"), title.String("runs first"), title.String("description"))
	for _, task := range tasks {
		deps := strings.Join(task.Dependencies, ", ")
		if deps == "" {
			deps = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", task.Name, deps, task.Description)
	}
	return w.Flush()
}
