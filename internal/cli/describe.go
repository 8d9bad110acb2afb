package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/stampview/internal/coordinate"
	"github.com/roach88/stampview/internal/entity"
)

// DescribeResult is what describe reports about one entity.
type DescribeResult struct {
	Nid      int32    `json:"nid"`
	UUIDs    []string `json:"uuids"`
	Name     string   `json:"name"`
	Visible  bool     `json:"visible"`
	State    string   `json:"state,omitempty"`
	Time     *int64   `json:"time,omitempty"`
	Versions int      `json:"versions"`
}

// NewDescribeCommand creates the describe command.
func NewDescribeCommand(rootOpts *RootOptions) *cobra.Command {
	var viewName string

	cmd := &cobra.Command{
		Use:   "describe <nid|uuid>",
		Short: "Show an entity's name and latest version under a view",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrinter(rootOpts, cmd)
			s, err := openSession(rootOpts)
			if err != nil {
				return err
			}
			defer s.Close()

			nid, err := s.resolveConcept(args[0])
			if err != nil {
				return p.Fail(ExitFailure, CodeNotFound, err.Error())
			}
			view, err := s.view(viewName, "", false)
			if err != nil {
				return p.Fail(ExitCommandError, CodeInvalidArg, err.Error())
			}
			res, err := describe(s, nid, view.Stamp, view.Languages)
			if err != nil {
				return p.Fail(ExitFailure, CodeInternalError, err.Error())
			}
			return p.Print(res, func(w io.Writer) { res.writeText(w) })
		},
	}

	cmd.Flags().StringVar(&viewName, "view", "default", "view preset")
	return cmd
}

func (r DescribeResult) writeText(w io.Writer) {
	fmt.Fprintf(w, "%s (nid %d)\n", r.Name, r.Nid)
	for _, id := range r.UUIDs {
		fmt.Fprintf(w, "  uuid:     %s\n", id)
	}
	fmt.Fprintf(w, "  versions: %d\n", r.Versions)
	if !r.Visible {
		fmt.Fprintln(w, "  latest:   not visible")
		return
	}
	fmt.Fprintf(w, "  latest:   %s at %s\n", r.State, entity.FormatTime(*r.Time))
}

func describe(s *session, nid int32, stampCoord coordinate.StampCoordinate, langs []coordinate.LanguageCoordinate) (DescribeResult, error) {
	res := DescribeResult{Nid: nid}

	ids, err := s.engine.Store().PublicID(nid)
	if err != nil {
		return res, err
	}
	for _, id := range ids {
		res.UUIDs = append(res.UUIDs, id.String())
	}
	chron, _, err := s.engine.Store().Chronology(nid)
	if err != nil {
		return res, err
	}
	res.Versions = len(chron.Versions)

	lang, err := s.engine.LanguageCalculator(stampCoord, langs...)
	if err != nil {
		return res, err
	}
	if res.Name, err = lang.DescriptionText(nid); err != nil {
		return res, err
	}

	latest, err := lang.StampCalculator().LatestStamp(nid)
	if err != nil {
		return res, err
	}
	if v, ok := latest.Get(); ok {
		t := v.Time
		res.Visible = true
		res.State = v.State.String()
		res.Time = &t
	}
	return res, nil
}
