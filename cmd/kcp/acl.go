package kcp

import (
	"fmt"

	"github.com/edgeflare/kcp/pkg/controlplane"
	"github.com/edgeflare/kcp/pkg/registry"
	"github.com/spf13/cobra"
)

var aclCmd = &cobra.Command{
	Use:   "acl",
	Short: "Manage the access rules of a topic",
}

var aclFlags struct {
	id   int64
	spec registry.AclSpec
}

func addSpecFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&aclFlags.spec.PrincipalEmail, "email", "", "email of the user the rule applies to")
	cmd.Flags().StringVar((*string)(&aclFlags.spec.Permission), "permission", string(registry.PermissionAllow), "allow or deny")
	cmd.Flags().StringVar((*string)(&aclFlags.spec.Operation), "operation", string(registry.OperationRead), "read, write, details or *")
	cmd.Flags().StringVar(&aclFlags.spec.Host, "host", registry.HostAny, "client host, * for any")
	cmd.Flags().StringVar(&aclFlags.spec.Role, "role", registry.RoleAny, `"Data owner", "Data scientist" or *`)
}

func requireID() error {
	if aclFlags.id == 0 {
		return fmt.Errorf("%w: --id is required", errUsage)
	}
	return nil
}

var aclAddCmd = topicCommand("add", "Add a rule to a topic",
	func(cmd *cobra.Command, cp *controlplane.ControlPlane, project registry.ProjectID, name string) error {
		rule, err := cp.AddAcl(cmd.Context(), project, name, aclFlags.spec)
		if err != nil {
			return err
		}
		return printJSON(rule)
	})

var aclListCmd = topicCommand("list", "List the rules of a topic",
	func(cmd *cobra.Command, cp *controlplane.ControlPlane, project registry.ProjectID, name string) error {
		rules, err := cp.ListAcls(cmd.Context(), project, name)
		if err != nil {
			return err
		}
		return printJSON(rules)
	})

var aclUpdateCmd = topicCommand("update", "Replace the values of a rule",
	func(cmd *cobra.Command, cp *controlplane.ControlPlane, project registry.ProjectID, name string) error {
		if err := requireID(); err != nil {
			return err
		}
		rule, err := cp.UpdateAcl(cmd.Context(), project, name, aclFlags.id, aclFlags.spec)
		if err != nil {
			return err
		}
		return printJSON(rule)
	})

var aclRemoveCmd = topicCommand("remove", "Remove a rule from a topic",
	func(cmd *cobra.Command, cp *controlplane.ControlPlane, project registry.ProjectID, name string) error {
		if err := requireID(); err != nil {
			return err
		}
		return cp.RemoveAcl(cmd.Context(), project, name, aclFlags.id)
	})

func init() {
	addSpecFlags(aclAddCmd)
	addSpecFlags(aclUpdateCmd)
	aclUpdateCmd.Flags().Int64Var(&aclFlags.id, "id", 0, "rule id")
	aclRemoveCmd.Flags().Int64Var(&aclFlags.id, "id", 0, "rule id")

	aclCmd.AddCommand(aclAddCmd, aclListCmd, aclUpdateCmd, aclRemoveCmd)
}
