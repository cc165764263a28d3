package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"sync"
	"testing"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v3"

	"taskkash/internal/model"
)

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []Message
	err  error
}

func (p *recordingPublisher) Publish(_ context.Context, msg Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, msg)
	return nil
}

type fakeAck struct {
	acked   int
	nacked  int
	requeue bool
}

func (a *fakeAck) Ack(uint64, bool) error { a.acked++; return nil }
func (a *fakeAck) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacked++
	a.requeue = requeue
	return nil
}
func (a *fakeAck) Reject(uint64, bool) error { return nil }

type memDeduper struct {
	claimed map[string]bool
}

func (d *memDeduper) Claim(_ context.Context, id string) (bool, error) {
	if d.claimed[id] {
		return false, nil
	}
	d.claimed[id] = true
	return true, nil
}

func (d *memDeduper) Release(_ context.Context, id string) error {
	delete(d.claimed, id)
	return nil
}

func delivery(t *testing.T, ack *fakeAck, msg Message) amqp.Delivery {
	t.Helper()
	body, err := json.Marshal(msg)
	require.NoError(t, err)
	return amqp.Delivery{Acknowledger: ack, Body: body, MessageId: msg.ID}
}

func TestDispatcher_JoinsSinkErrors(t *testing.T) {
	d := NewDispatcher()
	var delivered []string
	d.Handle(KindAdmin, SinkFunc(func(_ context.Context, msg Message) error {
		delivered = append(delivered, "feed")
		return nil
	}))
	d.Handle(KindAdmin, SinkFunc(func(_ context.Context, msg Message) error {
		return errors.New("telegram down")
	}))

	err := d.Dispatch(context.Background(), Message{Kind: KindAdmin})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telegram down")
	assert.Equal(t, []string{"feed"}, delivered)

	err = d.Dispatch(context.Background(), Message{Kind: KindEmail})
	assert.ErrorIs(t, err, ErrNoSink)
}

func TestNotifier_AssignsIDsAndSwallowsErrors(t *testing.T) {
	pub := &recordingPublisher{}
	n := NewNotifier(pub)

	n.NotifyUser(context.Background(), 7, "task_approved", "Approved", "+30 TP")
	n.NotifyAdmins(context.Background(), 7, "new_submission", "Submission", "review me")
	n.SendEmail(context.Background(), "ada@example.com", "Reset", "link")

	require.Len(t, pub.msgs, 3)
	assert.Equal(t, KindUser, pub.msgs[0].Kind)
	assert.Equal(t, int64(7), pub.msgs[0].UserID)
	assert.Equal(t, KindAdmin, pub.msgs[1].Kind)
	assert.Equal(t, KindEmail, pub.msgs[2].Kind)
	assert.NotEqual(t, pub.msgs[0].ID, pub.msgs[1].ID)

	failing := NewNotifier(&recordingPublisher{err: errors.New("broker down")})
	assert.NotPanics(t, func() {
		failing.NotifyUser(context.Background(), 1, "x", "t", "b")
	})
}

func TestConsumer_DeliversOnceAndAcks(t *testing.T) {
	d := NewDispatcher()
	count := 0
	d.Handle(KindUser, SinkFunc(func(context.Context, Message) error { count++; return nil }))

	dedupe := &memDeduper{claimed: map[string]bool{}}
	c := NewConsumer(d, &recordingPublisher{}, dedupe, ConsumerConfig{MaxAttempts: 3})

	msg := Message{ID: "m1", Kind: KindUser, UserID: 1, Body: "hi"}
	first := &fakeAck{}
	c.handle(context.Background(), delivery(t, first, msg))
	second := &fakeAck{}
	c.handle(context.Background(), delivery(t, second, msg))

	assert.Equal(t, 1, count)
	assert.Equal(t, 1, first.acked)
	assert.Equal(t, 1, second.acked, "duplicate is acked without delivery")
}

func TestConsumer_RetriesThenDrops(t *testing.T) {
	d := NewDispatcher()
	d.Handle(KindEmail, SinkFunc(func(context.Context, Message) error { return errors.New("smtp down") }))

	retry := &recordingPublisher{}
	dedupe := &memDeduper{claimed: map[string]bool{}}
	c := NewConsumer(d, retry, dedupe, ConsumerConfig{MaxAttempts: 2})

	ack := &fakeAck{}
	c.handle(context.Background(), delivery(t, ack, Message{ID: "m2", Kind: KindEmail, To: "a@b.c"}))

	require.Len(t, retry.msgs, 1)
	assert.Equal(t, 1, retry.msgs[0].Attempt)
	assert.Equal(t, 1, ack.acked)
	assert.False(t, dedupe.claimed["m2"], "failed delivery releases the claim")

	final := &fakeAck{}
	c.handle(context.Background(), delivery(t, final, retry.msgs[0]))
	assert.Len(t, retry.msgs, 1, "last attempt is not republished")
	assert.Equal(t, 1, final.acked)
}

func TestConsumer_RequeuesWhenRepublishFails(t *testing.T) {
	d := NewDispatcher()
	d.Handle(KindUser, SinkFunc(func(context.Context, Message) error { return errors.New("mongo down") }))

	c := NewConsumer(d, &recordingPublisher{err: errors.New("broker down")}, nil, ConsumerConfig{MaxAttempts: 5})
	ack := &fakeAck{}
	c.handle(context.Background(), delivery(t, ack, Message{ID: "m3", Kind: KindUser}))

	assert.Equal(t, 0, ack.acked)
	assert.Equal(t, 1, ack.nacked)
	assert.True(t, ack.requeue)
}

func TestConsumer_DropsMalformed(t *testing.T) {
	c := NewConsumer(NewDispatcher(), &recordingPublisher{}, nil, ConsumerConfig{})
	ack := &fakeAck{}
	c.handle(context.Background(), amqp.Delivery{Acknowledger: ack, Body: []byte("{not json")})

	assert.Equal(t, 1, ack.nacked)
	assert.False(t, ack.requeue)
}

func TestConsumer_ClosedDeliveriesIsAnError(t *testing.T) {
	d := NewDispatcher()
	count := 0
	d.Handle(KindUser, SinkFunc(func(context.Context, Message) error { count++; return nil }))
	c := NewConsumer(d, &recordingPublisher{}, nil, ConsumerConfig{MaxAttempts: 1})

	deliveries := make(chan amqp.Delivery, 1)
	ack := &fakeAck{}
	deliveries <- delivery(t, ack, Message{ID: "m4", Kind: KindUser})
	close(deliveries)

	err := c.consume(context.Background(), deliveries)
	assert.ErrorIs(t, err, ErrDeliveriesClosed)
	assert.Equal(t, 1, count, "buffered deliveries are handled before the close is reported")
	assert.Equal(t, 1, ack.acked)
}

func TestConsumer_StopsCleanlyOnCancel(t *testing.T) {
	c := NewConsumer(NewDispatcher(), &recordingPublisher{}, nil, ConsumerConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.NoError(t, c.consume(ctx, make(chan amqp.Delivery)))

	closed := make(chan amqp.Delivery)
	close(closed)
	assert.NoError(t, c.consume(ctx, closed), "a close during shutdown is expected")
}

type fakeNotificationStore struct {
	user []*model.Notification
}

func (s *fakeNotificationStore) Create(_ context.Context, n *model.Notification) error {
	s.user = append(s.user, n)
	return nil
}

type fakeAdminStore struct {
	admin []*model.AdminNotification
}

func (s *fakeAdminStore) Create(_ context.Context, n *model.AdminNotification) error {
	s.admin = append(s.admin, n)
	return nil
}

func TestFeedSinks(t *testing.T) {
	users := &fakeNotificationStore{}
	admins := &fakeAdminStore{}

	d := NewDispatcher()
	d.Handle(KindUser, UserFeedSink(users))
	d.Handle(KindAdmin, AdminFeedSink(admins))
	pub := NewInlinePublisher(d)

	require.NoError(t, pub.Publish(context.Background(), Message{Kind: KindUser, Event: "task_approved", UserID: 3, Title: "Approved"}))
	require.NoError(t, pub.Publish(context.Background(), Message{Kind: KindAdmin, Event: "new_user", UserID: 3, Title: "New user"}))

	require.Len(t, users.user, 1)
	assert.Equal(t, int64(3), users.user[0].UserID)
	assert.Equal(t, "task_approved", users.user[0].Kind)
	require.Len(t, admins.admin, 1)
	assert.Equal(t, "New user", admins.admin[0].Title)
}

func TestMailSink_FormatsMessage(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotBody string

	sink := &MailSink{
		addr: "smtp.example.com:587",
		from: "noreply@taskkash.io",
		sendMail: func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
			gotAddr, gotFrom, gotTo, gotBody = addr, from, to, string(msg)
			return nil
		},
	}

	err := sink.Deliver(context.Background(), Message{Kind: KindEmail, To: "ada@example.com", Subject: "Reset your password", Body: "https://app/reset?token=abc"})
	require.NoError(t, err)
	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Equal(t, "noreply@taskkash.io", gotFrom)
	assert.Equal(t, []string{"ada@example.com"}, gotTo)
	assert.Contains(t, gotBody, "Subject: Reset your password\r\n")
	assert.True(t, strings.HasSuffix(gotBody, "https://app/reset?token=abc"))

	err = sink.Deliver(context.Background(), Message{Kind: KindEmail})
	assert.Error(t, err)
}

func TestTelegramSink_SendsToEveryChat(t *testing.T) {
	var mu sync.Mutex
	var chats []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var params map[string]any
		_ = json.Unmarshal(body, &params)

		mu.Lock()
		chats = append(chats, params["chat_id"].(string))
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1,"chat":{"id":1}}}`))
	}))
	defer srv.Close()

	sink, err := newTelegramSink(tele.Settings{URL: srv.URL, Token: "test-token", Offline: true}, []int64{11, 22})
	require.NoError(t, err)

	err = sink.Deliver(context.Background(), Message{Kind: KindAdmin, Title: "New withdrawal", Body: "500 TP"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"11", "22"}, chats)
}
