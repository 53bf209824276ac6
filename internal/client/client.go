// Package client talks to a stancewatch decision server.
package client

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ppiankov/stancewatch/internal/model"
	"github.com/ppiankov/stancewatch/internal/server"
)

// ReasonUnreachable is the failure reason of the fail-closed decision.
const ReasonUnreachable = "failclosed.unreachable"

// DefaultTimeout bounds one RPC. Verification alone may take ten seconds.
const DefaultTimeout = 15 * time.Second

// Client connects to a stancewatch gRPC decision server.
type Client struct {
	conn    *grpc.ClientConn
	timeout time.Duration
}

// New creates a gRPC client for the given address.
// Fail-closed: if the server cannot be reached, Evaluate returns stop.
func New(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to decision server: %w", err)
	}
	return &Client{conn: conn, timeout: DefaultTimeout}, nil
}

// Evaluate sends req to the server. Any RPC or decoding error yields a
// stop decision, never an error.
func (c *Client) Evaluate(ctx context.Context, req model.RequestContext) model.DecisionResult {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	in, err := server.ToStruct(req)
	if err != nil {
		return failClosed(req, err)
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, server.EvaluateMethod, in, out); err != nil {
		return failClosed(req, err)
	}
	var res model.DecisionResult
	if err := server.FromStruct(out, &res); err != nil {
		return failClosed(req, err)
	}
	if res.Action == "" {
		return failClosed(req, fmt.Errorf("empty decision"))
	}
	return res
}

// Revoke revokes an ack token on the server.
func (c *Client) Revoke(ctx context.Context, tokenID string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	in, err := server.ToStruct(server.RevokeRequest{TokenID: tokenID})
	if err != nil {
		return err
	}
	return c.conn.Invoke(ctx, server.RevokeMethod, in, new(structpb.Struct))
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func failClosed(req model.RequestContext, err error) model.DecisionResult {
	return model.DecisionResult{
		RequestID: req.RequestID,
		Stance:    model.StanceShield,
		Veto: model.VetoDecision{
			Kind:   model.VetoHard,
			Action: model.ActionStop,
			Reason: ReasonUnreachable,
			Stakes: model.StakesCritical,
			Level:  model.LevelVeto,
		},
		Plan:          model.VerificationPlan{Status: model.StatusSkipped, Confidence: model.ConfidenceNone},
		Action:        model.ActionStop,
		FailureReason: fmt.Sprintf("decision server unreachable: %v", err),
	}
}
