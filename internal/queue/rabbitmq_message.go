package queue

import (
	"errors"
	"sync"
)

// ErrAlreadySettled is returned when a delivery is acked or nacked twice.
var ErrAlreadySettled = errors.New("delivery already settled")

// acknowledger is the part of *amqp.Channel a Message settles through.
type acknowledger interface {
	Ack(tag uint64, multiple bool) error
	Nack(tag uint64, multiple, requeue bool) error
}

// Message is a decoded training job together with its broker delivery.
type Message struct {
	job *Job
	tag uint64
	ch  acknowledger

	once sync.Once
}

func newMessage(job *Job, tag uint64, ch acknowledger) *Message {
	return &Message{job: job, tag: tag, ch: ch}
}

// settle runs fn once; later calls report ErrAlreadySettled.
func (m *Message) settle(fn func() error) error {
	err := ErrAlreadySettled
	m.once.Do(func() {
		err = fn()
	})
	return err
}

// Ack marks the job done.
func (m *Message) Ack() error {
	return m.settle(func() error { return m.ch.Ack(m.tag, false) })
}

// Nack rejects the job. Without requeue the broker dead-letters it.
func (m *Message) Nack(requeue bool) error {
	return m.settle(func() error { return m.ch.Nack(m.tag, false, requeue) })
}

// GetJob returns the decoded job.
func (m *Message) GetJob() *Job {
	return m.job
}

var _ Delivery = (*Message)(nil)
