package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/loqalabs/loqa-voiceid/internal/bus"
	"github.com/loqalabs/loqa-voiceid/internal/protocol"
	"github.com/nats-io/nats.go"
)

// remoteEnroll asks a running service to enroll and prints the same lines
// a local run does. Progress for the chosen run ID is collected while the
// request is in flight.
func remoteEnroll(ctx context.Context, w io.Writer, c *bus.Client, sample, profileName string) error {
	if sample == "" {
		return errors.New("enroll: -sample is required")
	}
	runID := uuid.NewString()
	progress := make(chan *nats.Msg, 64)
	sub, err := c.Conn().ChanSubscribe(protocol.EnrollProgressSubject(runID), progress)
	if err != nil {
		return fmt.Errorf("subscribe enroll progress: %w", err)
	}
	defer sub.Unsubscribe()

	var resp protocol.EnrollResponse
	err = c.RequestJSON(ctx, protocol.SubjectEnroll, protocol.EnrollRequest{RunID: runID, Sample: sample, Profile: profileName}, &resp)
	for drained := false; !drained; {
		select {
		case msg := <-progress:
			var p protocol.EnrollProgress
			if json.Unmarshal(msg.Data, &p) == nil {
				fmt.Fprintf(w, "[enroll progress] %d%% %s\n", p.Percentage, p.Message)
			}
		default:
			drained = true
		}
	}
	if err != nil {
		return err
	}
	if resp.Error != "" {
		return errors.New(resp.Error)
	}
	fmt.Fprintf(w, "[enroll result] %d%% %s\n", resp.Percentage, resp.Message)
	return nil
}

func remoteIdentify(ctx context.Context, w io.Writer, c *bus.Client, sample string) error {
	if sample == "" {
		return errors.New("identify: -sample is required")
	}
	var resp protocol.IdentifyResponse
	if err := c.RequestJSON(ctx, protocol.SubjectIdentify, protocol.IdentifyRequest{Sample: sample}, &resp); err != nil {
		return err
	}
	if resp.Error != "" {
		return errors.New(resp.Error)
	}
	for _, s := range resp.Scores {
		fmt.Fprintf(w, "score of %q %v\n", s.Profile, s.Score)
	}
	return nil
}

func remoteProfiles(ctx context.Context, w io.Writer, c *bus.Client) error {
	var resp protocol.ProfilesResponse
	if err := c.RequestJSON(ctx, protocol.SubjectProfiles, protocol.ProfilesRequest{}, &resp); err != nil {
		return err
	}
	if resp.Error != "" {
		return errors.New(resp.Error)
	}
	for _, name := range resp.Profiles {
		fmt.Fprintln(w, name)
	}
	return nil
}
