// Package eventscmder provides the events command group for emitting record
// mutation events by hand.
package eventscmder

import (
	"github.com/spf13/cobra"
)

const eventsLongDesc string = `Emit record mutation events.

Record events tell a running vecindex server that a source record was
created, updated or deleted so it can refresh the matching document. They
are normally emitted by the application that owns the records; this command
emits them by hand, for repairs and for testing a deployment.

Examples:
  vecindex events publish --type updated --entity products:item --record 42 --tenant acme
  vecindex events publish --type deleted --entity products:item --record 42 --tenant acme --api`

const eventsShortDesc string = "Emit record mutation events"

func NewEventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: eventsShortDesc,
		Long:  eventsLongDesc,
	}

	cmd.AddCommand(newPublishCmd())

	return cmd
}
