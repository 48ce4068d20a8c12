package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"cvforge/internal/account"
	"cvforge/internal/capability"
)

func newAccountCmd(flags *dbFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage accounts",
	}

	var tier, status string
	create := &cobra.Command{
		Use:   "create <username>",
		Short: "Create an account on the given plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := flags.open()
			if err != nil {
				return err
			}
			acc, err := account.NewService(db).Create(cmd.Context(), args[0], capability.SubscriptionState{Tier: tier, Status: status})
			if err != nil {
				return err
			}
			cmd.Printf("已创建账号 id=%d username=%s plan=%s/%s\n", acc.ID, acc.Username, acc.Plan, acc.PlanStatus)
			return nil
		},
	}
	create.Flags().StringVar(&tier, "tier", capability.TierFree, "套餐档位：free / pro / business")
	create.Flags().StringVar(&status, "status", capability.StatusActive, "订阅状态：active / past_due / canceled")

	show := &cobra.Command{
		Use:   "show <account-id>",
		Short: "Print the resolved capabilities of an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseAccountID(args[0])
			if err != nil {
				return err
			}
			db, err := flags.open()
			if err != nil {
				return err
			}
			caps, err := account.NewService(db).Capabilities(cmd.Context(), id)
			if err != nil {
				return err
			}
			cmd.Printf("tier=%s templates=%v custom=%d export=%t generations/day=%d\n",
				caps.Tier, caps.AllowedTemplateIDs, caps.MaxCustomTemplates, caps.ExportEnabled, caps.MaxGenerationsPerDay)
			return nil
		},
	}

	cmd.AddCommand(create, show)
	return cmd
}

func newPlanCmd(flags *dbFlags) *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "plan <account-id> <tier>",
		Short: "Apply a subscription change (takes effect on the next request)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseAccountID(args[0])
			if err != nil {
				return err
			}
			db, err := flags.open()
			if err != nil {
				return err
			}
			state := capability.SubscriptionState{Tier: args[1], Status: status}
			if err := account.NewService(db).SetPlan(cmd.Context(), id, state); err != nil {
				return err
			}
			resolved := capability.Resolve(state)
			cmd.Printf("账号 %d 套餐已更新，生效档位 %s\n", id, resolved.Tier)
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", capability.StatusActive, "订阅状态：active / past_due / canceled")
	return cmd
}

func parseAccountID(raw string) (uint, error) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid account id %q", raw)
	}
	return uint(id), nil
}
