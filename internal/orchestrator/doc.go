// Package orchestrator runs quests through their agent pipeline.
//
// A quest is driven by one Process that owns a fixed set of slots:
//   - pathseeker plans the steps when the quest has none
//   - codeweaver agents work through ready steps in dependency order
//   - ward verifies the result, with spiritmender repairing between runs
//   - siegemaster checks observables and lawbringer reviews files
//
// Agents report back through the signal-back tool. RunLoop turns those
// signals into step updates: complete finishes a step, partially-complete
// respawns it with continuation context and needs-role-followup hands it
// to another role for a bounded number of rounds.
//
// The Orchestrator type is the facade the CLI, the MCP server and the TUI
// share. It resolves quests across the current project, registered
// projects and guilds, starts processes in the background and publishes
// Events for status views.
//
// Example usage:
//
//	o := orchestrator.New(cfg, orchestrator.WithWorkDir(dir))
//	defer o.Close()
//	id, err := o.StartQuest("add-auth")
//	if err != nil {
//		return err
//	}
//	return o.Wait(ctx, id)
package orchestrator
