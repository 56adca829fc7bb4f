package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// HandlerFunc processes one delivery. A returned error requeues it unless it
// is Permanent.
type HandlerFunc func(context.Context, amqp091.Delivery) error

// Subscriber consumes one queue bound to the exchange, fanning deliveries
// out to a fixed worker pool.
type Subscriber struct {
	ch        *amqp091.Channel
	exchange  string
	log       *slog.Logger
	handlers  map[string]HandlerFunc
	msgChan   chan amqp091.Delivery
	done      chan struct{}
	wg        sync.WaitGroup
	once      sync.Once
	closeOnce sync.Once
	workerCnt int
	timeout   time.Duration
}

// NewSubscriber opens a channel on conn and declares the exchange
func NewSubscriber(conn *amqp091.Connection, exchange string, logger *slog.Logger, bufferCap, workerCnt int) (*Subscriber, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, err
	}
	if workerCnt < 1 {
		workerCnt = 1
	}
	return &Subscriber{
		ch:        ch,
		exchange:  exchange,
		log:       logger,
		handlers:  make(map[string]HandlerFunc),
		msgChan:   make(chan amqp091.Delivery, bufferCap),
		done:      make(chan struct{}),
		workerCnt: workerCnt,
		timeout:   10 * time.Second,
	}, nil
}

// RegisterHandler binds routingKey to handler. Call before Start.
func (s *Subscriber) RegisterHandler(routingKey string, handler HandlerFunc) {
	s.handlers[routingKey] = handler
}

// Start declares the queue, binds every registered key and starts workers
func (s *Subscriber) Start(queueName string) error {
	var startErr error
	s.once.Do(func() {
		if err := s.setupQueue(queueName); err != nil {
			startErr = err
			return
		}
		for i := 0; i < s.workerCnt; i++ {
			s.wg.Add(1)
			go s.workerLoop()
		}
		s.log.Info("subscriber started", slog.String("queue", queueName))
	})
	return startErr
}

func (s *Subscriber) setupQueue(queueName string) error {
	if err := s.ch.Qos(10, 0, false); err != nil {
		return err
	}
	q, err := s.ch.QueueDeclare(queueName, true, false, false, false, nil)
	if err != nil {
		return err
	}
	for key := range s.handlers {
		if err := s.ch.QueueBind(q.Name, key, s.exchange, false, nil); err != nil {
			return err
		}
	}
	msgs, err := s.ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	go func() {
		defer close(s.msgChan)
		for {
			select {
			case <-s.done:
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				s.msgChan <- msg
			}
		}
	}()
	return nil
}

func (s *Subscriber) workerLoop() {
	defer s.wg.Done()
	for msg := range s.msgChan {
		s.handle(msg)
	}
}

func (s *Subscriber) handle(msg amqp091.Delivery) {
	handler, ok := s.handlers[msg.RoutingKey]
	if !ok {
		s.log.Warn("no handler", slog.String("key", msg.RoutingKey))
		_ = msg.Nack(false, false)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	err := handler(ctx, msg)
	cancel()

	switch {
	case err == nil:
		_ = msg.Ack(false)
	case IsPermanent(err):
		s.log.Warn("dropping message", slog.String("key", msg.RoutingKey), slog.Any("err", err))
		_ = msg.Nack(false, false)
	default:
		s.log.Error("handler error", slog.String("key", msg.RoutingKey), slog.Any("err", err))
		_ = msg.Nack(false, true)
	}
}

// Close stops the workers and the channel. The connection stays open.
func (s *Subscriber) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
		err = s.ch.Close()
	})
	return err
}
