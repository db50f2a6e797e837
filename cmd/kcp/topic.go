package kcp

import (
	"fmt"

	"github.com/edgeflare/kcp/pkg/controlplane"
	"github.com/edgeflare/kcp/pkg/registry"
	"github.com/spf13/cobra"
)

var topicCmd = &cobra.Command{
	Use:     "topic",
	Aliases: []string{"t"},
	Short:   "Create, delete, inspect and share topics",
}

var topicFlags struct {
	project     int32
	name        string
	partitions  int32
	replication int16
	target      int32
	owner       int32
}

func projectID() (registry.ProjectID, error) {
	if topicFlags.project == 0 {
		return 0, fmt.Errorf("%w: --project is required", errUsage)
	}
	return registry.ProjectID(topicFlags.project), nil
}

func topicName() (string, error) {
	if topicFlags.name == "" {
		return "", fmt.Errorf("%w: --name is required", errUsage)
	}
	return topicFlags.name, nil
}

// topicCommand builds a subcommand that needs a project and a topic name.
func topicCommand(use, short string, fn func(cmd *cobra.Command, cp *controlplane.ControlPlane, project registry.ProjectID, name string) error) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			project, err := projectID()
			if err != nil {
				return err
			}
			name, err := topicName()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer a.Close()
			return fn(cmd, a.cp, project, name)
		},
	}
	cmd.Flags().Int32VarP(&topicFlags.project, "project", "p", 0, "project id")
	cmd.Flags().StringVarP(&topicFlags.name, "name", "n", "", "topic name")
	return cmd
}

var topicCreateCmd = topicCommand("create", "Create a topic owned by the project",
	func(cmd *cobra.Command, cp *controlplane.ControlPlane, project registry.ProjectID, name string) error {
		ctx := cmd.Context()
		req := controlplane.TopicRequest{Name: name, Partitions: topicFlags.partitions, ReplicationFactor: topicFlags.replication}
		topic, err := withRetry(ctx, func() (registry.Topic, error) { return cp.CreateTopic(ctx, project, req) })
		if err != nil {
			return err
		}
		return printJSON(topic)
	})

var topicDeleteCmd = topicCommand("delete", "Delete a topic owned by the project",
	func(cmd *cobra.Command, cp *controlplane.ControlPlane, project registry.ProjectID, name string) error {
		ctx := cmd.Context()
		return run(ctx, func() error { return cp.DeleteTopic(ctx, project, name) })
	})

var topicDescribeCmd = topicCommand("describe", "Show a topic with its live partitions",
	func(cmd *cobra.Command, cp *controlplane.ControlPlane, project registry.ProjectID, name string) error {
		ctx := cmd.Context()
		desc, err := withRetry(ctx, func() (controlplane.TopicDescription, error) { return cp.DescribeTopic(ctx, project, name) })
		if err != nil {
			return err
		}
		return printJSON(desc)
	})

var topicShareCmd = topicCommand("share", "Share a topic with another project",
	func(cmd *cobra.Command, cp *controlplane.ControlPlane, project registry.ProjectID, name string) error {
		if topicFlags.target == 0 {
			return fmt.Errorf("%w: --to is required", errUsage)
		}
		return cp.ShareTopic(cmd.Context(), project, name, registry.ProjectID(topicFlags.target))
	})

var topicSharedWithCmd = topicCommand("shared-with", "List the projects a topic is shared with",
	func(cmd *cobra.Command, cp *controlplane.ControlPlane, project registry.ProjectID, name string) error {
		projects, err := cp.SharedWith(cmd.Context(), project, name)
		if err != nil {
			return err
		}
		return printJSON(projects)
	})

var topicListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the topics a project owns or has been shared",
	RunE: func(cmd *cobra.Command, args []string) error {
		project, err := projectID()
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer a.Close()

		topics, err := a.cp.ListTopics(cmd.Context(), project)
		if err != nil {
			return err
		}
		return printJSON(topics)
	},
}

var topicUnshareCmd = &cobra.Command{
	Use:   "unshare",
	Short: "Revoke a project's access to a shared topic",
	RunE: func(cmd *cobra.Command, args []string) error {
		name, err := topicName()
		if err != nil {
			return err
		}
		if topicFlags.target == 0 {
			return fmt.Errorf("%w: --from is required", errUsage)
		}
		var owner []registry.ProjectID
		if topicFlags.owner != 0 {
			owner = append(owner, registry.ProjectID(topicFlags.owner))
		}

		a, err := newApp(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer a.Close()
		return a.cp.UnshareTopic(cmd.Context(), name, registry.ProjectID(topicFlags.target), owner...)
	},
}

func init() {
	topicCreateCmd.Flags().Int32Var(&topicFlags.partitions, "partitions", 0, "number of partitions (default kafka.defaultPartitions)")
	topicCreateCmd.Flags().Int16Var(&topicFlags.replication, "replication", 0, "replication factor (default kafka.defaultReplicationFactor)")
	topicShareCmd.Flags().Int32Var(&topicFlags.target, "to", 0, "project to share with")

	topicListCmd.Flags().Int32VarP(&topicFlags.project, "project", "p", 0, "project id")

	topicUnshareCmd.Flags().StringVarP(&topicFlags.name, "name", "n", "", "topic name")
	topicUnshareCmd.Flags().Int32Var(&topicFlags.target, "from", 0, "project losing access")
	topicUnshareCmd.Flags().Int32Var(&topicFlags.owner, "owner", 0, "owning project, checked when given")

	topicCmd.AddCommand(topicCreateCmd, topicDeleteCmd, topicListCmd, topicDescribeCmd,
		topicShareCmd, topicUnshareCmd, topicSharedWithCmd)
}
