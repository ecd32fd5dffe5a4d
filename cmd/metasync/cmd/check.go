package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/solatis/metasync/internal/core/descriptor"
	"github.com/solatis/metasync/internal/document"
	"github.com/solatis/metasync/internal/rules"
	"github.com/solatis/metasync/internal/types"
)

var checkCmd = &cobra.Command{
	Use:   "check [path]",
	Short: "Validate descriptors and preview rule matching",
	Long: `check loads the descriptors at path (default ./descriptors), reports
rules referencing unknown mappings and, with --type, shows which rules and
mappings a document of that type would trigger when a blob is attached.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().String("type", "", "document type to preview")
	checkCmd.Flags().StringSlice("facet", nil, "document facet to preview (repeatable)")
	checkCmd.Flags().StringToString("set", nil, "property values of the preview document (path=value)")
}

var (
	syncLabel  = color.New(color.FgGreen).SprintFunc()
	asyncLabel = color.New(color.FgCyan).SprintFunc()
	offLabel   = color.New(color.Faint).SprintFunc()
	warnLabel  = color.New(color.FgYellow).SprintFunc()
)

func runCheck(cmd *cobra.Command, args []string) error {
	path := "./descriptors"
	if len(args) == 1 {
		path = args[0]
	}

	reg, err := descriptor.Load(path)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "%s: %d rule(s), %d mapping(s), digest %s\n",
		path, len(reg.Rules()), len(reg.Mappings()), reg.Digest())
	warnings := printRules(out, reg)

	docType, _ := cmd.Flags().GetString("type")
	if docType != "" {
		facets, _ := cmd.Flags().GetStringSlice("facet")
		props, _ := cmd.Flags().GetStringToString("set")
		if err := previewPlan(out, reg, docType, facets, props); err != nil {
			return err
		}
	}

	if warnings > 0 {
		return fmt.Errorf("%d rule(s) reference unknown mappings", warnings)
	}
	return nil
}

func printRules(out io.Writer, reg *rules.Registry) int {
	warnings := 0
	for _, rule := range reg.Rules() {
		lane := syncLabel("sync")
		if rule.Async {
			lane = asyncLabel("async")
		}
		if !rule.Enabled {
			lane = offLabel("disabled")
		}
		fmt.Fprintf(out, "  rule %-24s %-8s filters=[%s] mappings=[%s]\n",
			rule.ID, lane, strings.Join(rule.FilterIDs, ","), strings.Join(rule.MappingIDs, ","))

		_, missing := rules.Resolve(rule.MappingIDs, reg)
		for _, m := range missing {
			fmt.Fprintf(out, "    %s %s\n", warnLabel("warning:"), m.String())
			warnings++
		}
	}
	return warnings
}

// previewPlan plans a new document of docType whose blobs are all freshly
// attached, which is the state a first save reconciles.
func previewPlan(out io.Writer, reg *rules.Registry, docType string, facets []string, props map[string]string) error {
	doc := document.New(docType, facets...)
	for path, value := range props {
		if err := doc.SetProperty(path, value); err != nil {
			return err
		}
	}

	plan, err := rules.PlanWith(reg, doc)
	if err != nil {
		return err
	}
	for _, m := range plan.SyncMappings {
		attachPlaceholder(doc, m)
	}
	for _, m := range plan.AsyncMappings {
		attachPlaceholder(doc, m)
	}

	fmt.Fprintf(out, "\npreview %s", docType)
	if len(facets) > 0 {
		fmt.Fprintf(out, " [%s]", strings.Join(facets, ","))
	}
	fmt.Fprintln(out)

	if len(plan.Matched) == 0 {
		fmt.Fprintln(out, "  no rule matches")
		return nil
	}
	for _, r := range plan.Matched {
		fmt.Fprintf(out, "  matched %s\n", r.ID)
	}
	printLane(out, syncLabel("sync"), plan.SyncMappings, doc)
	printLane(out, asyncLabel("async"), plan.AsyncMappings, doc)
	for _, m := range plan.Missing {
		fmt.Fprintf(out, "  %s %s\n", warnLabel("warning:"), m.String())
	}
	return nil
}

func attachPlaceholder(doc *document.Document, m types.MappingDescriptor) {
	if _, err := doc.Binary(m.BlobPath); err == nil {
		return
	}
	_ = doc.SetBinary(m.BlobPath, &types.Blob{Filename: "preview", Data: []byte{}})
}

func printLane(out io.Writer, label string, mappings []types.MappingDescriptor, doc *document.Document) {
	for _, m := range mappings {
		outcome, err := rules.Reconcile(m, doc)
		if err != nil {
			fmt.Fprintf(out, "  %s %s: %s\n", label, m.ID, warnLabel(err.Error()))
			continue
		}
		fmt.Fprintf(out, "  %s %-24s %s -> %s\n", label, m.ID, m.BlobPath, outcome.Direction)
	}
}
