package hazard

import (
	"context"
	"fmt"

	"github.com/dd0wney/cluso-hazard/pkg/codec"
	"github.com/dd0wney/cluso-hazard/pkg/gmm"
)

// Handler adapts the kernels to the byte-payload contract of the worker
// pools: the payload is an encoded Task, the result an encoded PartialResult.
func Handler(registry *gmm.Registry) func(ctx context.Context, payload []byte) ([]byte, error) {
	return func(ctx context.Context, payload []byte) ([]byte, error) {
		var task Task
		if err := codec.Decode(payload, &task); err != nil {
			return nil, fmt.Errorf("decode task: %w", err)
		}
		res, err := Run(ctx, &task, registry)
		if err != nil {
			return nil, err
		}
		return codec.Encode(res)
	}
}
