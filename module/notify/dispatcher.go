package notify

import (
	"context"
	"time"

	"PPRealtime/module/chat/model"
	"PPRealtime/tools/safe"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// PushProvider sends one payload to one device token.
type PushProvider interface {
	SendToToken(ctx context.Context, token string, p Payload) error
}

// RecipientStore resolves push preferences and devices. module/user
// implements it.
type RecipientStore interface {
	Settings(ctx context.Context, userID string) (model.NotificationSettings, error)
	ActiveTokens(ctx context.Context, userID string) ([]model.DeviceToken, error)
}

type MuteChecker interface {
	IsMuted(ctx context.Context, conversationID, userID string) (bool, error)
}

type Result struct {
	SuccessCount int      `json:"successCount"`
	FailureCount int      `json:"failureCount"`
	FailedTokens []string `json:"failedTokens"`
}

type Conf struct {
	PreviewLen  int           // body length in runes, default 100
	SendTimeout time.Duration // per token, default 10s
	Concurrency int           // parallel sends per dispatch, default 16
}

func (c *Conf) norm() {
	if c.PreviewLen <= 0 {
		c.PreviewLen = 100
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 10 * time.Second
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 16
	}
}

// Dispatcher is the offline fallback: recipients without a live session get
// a push notification. It never touches delivery status.
type Dispatcher struct {
	provider PushProvider
	users    RecipientStore
	mutes    MuteChecker
	conf     Conf
	log      *zap.Logger
}

func NewDispatcher(provider PushProvider, users RecipientStore, mutes MuteChecker, conf Conf, log *zap.Logger) *Dispatcher {
	conf.norm()
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{provider: provider, users: users, mutes: mutes, conf: conf, log: log}
}

type job struct {
	token   string
	payload Payload
}

// Dispatch notifies the offline recipients of msg. Lookup failures skip the
// recipient; send failures are counted. It never returns an error.
func (d *Dispatcher) Dispatch(ctx context.Context, msg *model.Message, offlineRecipientIDs []string) Result {
	var jobs []job
	seen := make(map[string]struct{})
	for _, uid := range offlineRecipientIDs {
		if uid == "" || uid == msg.SenderID {
			continue
		}
		st, ok := d.eligible(ctx, msg, uid)
		if !ok {
			continue
		}
		tokens, err := d.users.ActiveTokens(ctx, uid)
		if err != nil {
			d.log.Warn("push: token lookup failed", zap.String("user", uid), zap.Error(err))
			continue
		}
		p := MessagePayload(msg, d.conf.PreviewLen, st.ShowPreview)
		for _, t := range tokens {
			if _, dup := seen[t.Token]; dup || t.Token == "" || !t.Active {
				continue
			}
			seen[t.Token] = struct{}{}
			jobs = append(jobs, job{token: t.Token, payload: p})
		}
	}

	res := d.send(ctx, jobs)
	if len(jobs) > 0 && res.SuccessCount == 0 {
		d.log.Error("push: all sends failed",
			zap.String("message", msg.ID), zap.Int("tokens", len(jobs)))
	}
	return res
}

func (d *Dispatcher) eligible(ctx context.Context, msg *model.Message, uid string) (model.NotificationSettings, bool) {
	if d.mutes != nil {
		muted, err := d.mutes.IsMuted(ctx, msg.ConversationID, uid)
		if err != nil {
			d.log.Warn("push: mute lookup failed", zap.String("user", uid), zap.Error(err))
			return model.NotificationSettings{}, false
		}
		if muted {
			return model.NotificationSettings{}, false
		}
	}
	st, err := d.users.Settings(ctx, uid)
	if err != nil {
		d.log.Warn("push: settings lookup failed", zap.String("user", uid), zap.Error(err))
		return st, false
	}
	if !st.Enabled || !st.MessageNotifications {
		return st, false
	}
	if msg.IsGroup() && !st.GroupNotifications {
		return st, false
	}
	return st, true
}

// SendToUser pushes p to every active device of userID.
func (d *Dispatcher) SendToUser(ctx context.Context, userID string, p Payload) Result {
	tokens, err := d.users.ActiveTokens(ctx, userID)
	if err != nil {
		d.log.Warn("push: token lookup failed", zap.String("user", userID), zap.Error(err))
		return Result{}
	}
	jobs := make([]job, 0, len(tokens))
	for _, t := range tokens {
		if t.Token != "" && t.Active {
			jobs = append(jobs, job{token: t.Token, payload: p})
		}
	}
	return d.send(ctx, jobs)
}

func (d *Dispatcher) send(ctx context.Context, jobs []job) Result {
	res := Result{FailedTokens: []string{}}
	if len(jobs) == 0 {
		return res
	}
	failed := make([]bool, len(jobs))

	var g errgroup.Group
	g.SetLimit(d.conf.Concurrency)
	for i, j := range jobs {
		i, j := i, j
		g.Go(func() error {
			failed[i] = d.sendOne(ctx, j) != nil
			return nil
		})
	}
	_ = g.Wait()

	for i, j := range jobs {
		if failed[i] {
			res.FailureCount++
			res.FailedTokens = append(res.FailedTokens, j.token)
		} else {
			res.SuccessCount++
		}
	}
	return res
}

func (d *Dispatcher) sendOne(ctx context.Context, j job) error {
	sctx, cancel := context.WithTimeout(ctx, d.conf.SendTimeout)
	defer cancel()

	errCh := make(chan error, 1)
	safe.Go("push-send", func() {
		var err error
		if perr := safe.Call(func() { err = d.provider.SendToToken(sctx, j.token, j.payload) }); perr != nil {
			err = perr
		}
		errCh <- err
	})
	select {
	case err := <-errCh:
		if err != nil {
			d.log.Debug("push: send failed", zap.String("token", mask(j.token)), zap.Error(err))
		}
		return err
	case <-sctx.Done():
		d.log.Debug("push: send timed out", zap.String("token", mask(j.token)))
		return sctx.Err()
	}
}

func mask(token string) string {
	if len(token) <= 8 {
		return "***"
	}
	return token[:4] + "***" + token[len(token)-4:]
}
