package runtime

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/discoclaw/discoclaw/internal/domain/entity"
	appErrors "github.com/discoclaw/discoclaw/pkg/errors"
)

// BlockingInvoker adapts a streaming Adapter to the single blocking call
// forge.Invoker / plan.Invoker / cron.Invoker each declare independently,
// so those packages stay decoupled from the streaming event protocol the
// interactive message pipeline drains directly. Grounded on the same
// accumulate-then-return shape the message pipeline's invokeAndStream
// uses, generalized into a reusable adapter-facing helper.
type BlockingInvoker struct {
	registry  *Registry
	limiter   *Limiter
	adapterID string
	timeout   time.Duration
}

func NewBlockingInvoker(registry *Registry, limiter *Limiter, adapterID string, timeout time.Duration) *BlockingInvoker {
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return &BlockingInvoker{registry: registry, limiter: limiter, adapterID: adapterID, timeout: timeout}
}

// InvokeText runs one invocation to completion, concatenating every
// text_delta (or the last text_final) into a single string. An error
// event surfaces as a returned error, alongside whatever text had
// accumulated before it.
func (b *BlockingInvoker) InvokeText(sessionKey, model, prompt string, tools []string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	if err := b.limiter.Acquire(ctx); err != nil {
		return "", err
	}
	defer b.limiter.Release()

	adapter, err := b.registry.Get(b.adapterID)
	if err != nil {
		return "", err
	}

	events, err := adapter.Invoke(ctx, entity.InvokeParams{
		Prompt:     prompt,
		Model:      model,
		Tools:      tools,
		SessionKey: sessionKey,
		Timeout:    b.timeout,
	})
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for ev := range events {
		switch ev.Kind {
		case entity.EventTextDelta:
			sb.WriteString(ev.Text)
		case entity.EventTextFinal:
			sb.Reset()
			sb.WriteString(ev.Text)
		case entity.EventError:
			if gateErr, ok := appErrors.ParseToolGateError(ev.Text); ok {
				return sb.String(), gateErr
			}
			return sb.String(), fmt.Errorf("runtime error: %s", ev.Text)
		}
	}
	return sb.String(), nil
}
