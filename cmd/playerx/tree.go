package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pumped-fn/playerx"
)

func treeCmd() *cobra.Command {
	var (
		configPath string
		duration   time.Duration
		depth      int
	)

	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Print the execution tree of a run",
		Long: `Tree plays the configured source with logging silenced and prints every
finished fork of the run as a tree.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			cfg.Log.Format = "silent"

			s, err := startSession(cfg, io.Discard)
			if err != nil {
				return err
			}
			if err := s.run(duration); err != nil {
				_ = s.close()
				return err
			}
			if err := s.close(); err != nil {
				return err
			}

			writeTree(os.Stdout, s.rt.ExecutionTree(), depth)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "playerx.yaml", "Configuration file")
	cmd.Flags().DurationVarP(&duration, "duration", "d", 0, "Playback duration (default from config)")
	cmd.Flags().IntVar(&depth, "depth", 0, "Maximum depth to print (0 prints everything)")

	return cmd
}

func writeTree(w io.Writer, tree *playerx.ExecutionTree, maxDepth int) {
	var write func(node *playerx.ExecutionNode, prefix string, last bool, depth int)
	write = func(node *playerx.ExecutionNode, prefix string, last bool, depth int) {
		branch := "├─ "
		next := prefix + "│  "
		if last {
			branch = "└─ "
			next = prefix + "   "
		}
		if depth == 0 {
			branch, next = "", ""
		}
		fmt.Fprintf(w, "%s%s%s\n", prefix, branch, describe(node))

		if maxDepth > 0 && depth+1 >= maxDepth {
			return
		}
		children := tree.GetChildren(node.ID)
		for i, child := range children {
			write(child, next, i == len(children)-1, depth+1)
		}
	}

	for _, root := range tree.GetRoots() {
		write(root, "", true, 0)
	}
}

func describe(node *playerx.ExecutionNode) string {
	name, _ := playerx.TaskName().FromNode(node)
	status, _ := playerx.Status().FromNode(node)

	var sb strings.Builder
	sb.WriteString(name)

	switch status {
	case playerx.TaskCompleted:
		sb.WriteString(" ✓")
	case playerx.TaskFailed:
		sb.WriteString(" ❌")
	default:
		sb.WriteString(" (" + status.String() + ")")
	}

	start, okStart := playerx.StartTime().FromNode(node)
	end, okEnd := playerx.EndTime().FromNode(node)
	if okStart && okEnd {
		fmt.Fprintf(&sb, " %s", end.Sub(start).Round(time.Microsecond))
	}
	if err, ok := playerx.ErrorTag().FromNode(node); ok && status == playerx.TaskFailed {
		fmt.Fprintf(&sb, " error: %v", err)
	}
	return sb.String()
}
