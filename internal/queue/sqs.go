// Copyright 2025 James Ross
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/dclexplorer/consumer-processor/internal/config"
	"github.com/dclexplorer/consumer-processor/internal/obs"
	"go.uber.org/zap"
)

const visibilityTimeoutSeconds = 10800 // 3h, spec.md 3 invariant

// entityQueue pairs a queue name label with its SQS URL.
type entityQueue struct {
	name string
	url  string
}

// CloudPort is the multi-queue AWS SQS backend: one priority queue plus up
// to three entity-typed queues, polled with strict priority preference and
// round-robin fairness across the rest (spec.md 4.3 "Cloud multi-queue").
type CloudPort struct {
	cfg          *config.Config
	client       *sqs.SQS
	log          *zap.Logger
	priorityURL  string
	entityQueues []entityQueue

	mu     sync.Mutex
	cursor int
}

func NewCloudPort(cfg *config.Config, log *zap.Logger) (*CloudPort, error) {
	awsCfg := &aws.Config{Region: aws.String(cfg.AWS.Region)}
	if cfg.AWS.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.AWS.Endpoint)
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, err
	}

	var queues []entityQueue
	if cfg.Queues.Task != "" {
		queues = append(queues, entityQueue{name: "scene", url: cfg.Queues.Task})
	}
	if cfg.Queues.Wearable != "" {
		queues = append(queues, entityQueue{name: "wearable", url: cfg.Queues.Wearable})
	}
	if cfg.Queues.Emote != "" {
		queues = append(queues, entityQueue{name: "emote", url: cfg.Queues.Emote})
	}

	return &CloudPort{
		cfg:          cfg,
		client:       sqs.New(sess),
		log:          log,
		priorityURL:  cfg.Queues.Priority,
		entityQueues: queues,
	}, nil
}

func (p *CloudPort) Publish(ctx context.Context, job Job, priority bool) error {
	body, err := EncodeEnvelope(job)
	if err != nil {
		return err
	}
	url := p.cfg.Queues.Task
	queueLabel := "scene"
	if priority && p.priorityURL != "" {
		url = p.priorityURL
		queueLabel = "priority"
	}
	_, err = p.client.SendMessageWithContext(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(url),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return err
	}
	obs.EnqueueTotal.WithLabelValues(queueLabel).Inc()
	return nil
}

// ConsumeAndProcess implements the poll order from spec.md 4.3:
// priority first (1s wait), then round-robin entity queues (1s wait, 15s
// on the last), advancing the fairness cursor on every poll cycle.
func (p *CloudPort) ConsumeAndProcess(ctx context.Context, handler Handler) error {
	if p.priorityURL != "" {
		msg, err := p.receiveOne(ctx, p.priorityURL, 1*time.Second)
		if err != nil {
			p.log.Warn("priority receive error", obs.Err(err))
			time.Sleep(1 * time.Second)
			return nil
		}
		if msg != nil {
			p.process(ctx, "priority", p.priorityURL, msg, handler, true)
			return nil
		}
	}

	if len(p.entityQueues) == 0 {
		time.Sleep(1 * time.Second)
		return nil
	}

	p.mu.Lock()
	start := p.cursor % len(p.entityQueues)
	p.mu.Unlock()

	for i := 0; i < len(p.entityQueues); i++ {
		idx := (start + i) % len(p.entityQueues)
		q := p.entityQueues[idx]
		wait := 1 * time.Second
		if i == len(p.entityQueues)-1 {
			wait = 15 * time.Second
		}
		msg, err := p.receiveOne(ctx, q.url, wait)
		if err != nil {
			p.log.Warn("queue receive error", obs.String("queue", q.name), obs.Err(err))
			time.Sleep(1 * time.Second)
			return nil
		}
		if msg != nil {
			p.process(ctx, q.name, q.url, msg, handler, false)
			p.mu.Lock()
			p.cursor = idx + 1
			p.mu.Unlock()
			return nil
		}
	}

	// All queues empty this cycle: advance the cursor once for fairness
	// (spec.md 9 "Priority/round-robin coupling").
	p.mu.Lock()
	p.cursor = start + 1
	p.mu.Unlock()
	return nil
}

func (p *CloudPort) receiveOne(ctx context.Context, url string, wait time.Duration) (*sqs.Message, error) {
	out, err := p.client.ReceiveMessageWithContext(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(url),
		MaxNumberOfMessages: aws.Int64(1),
		WaitTimeSeconds:     aws.Int64(int64(wait.Seconds())),
		VisibilityTimeout:   aws.Int64(visibilityTimeoutSeconds),
	})
	if err != nil {
		return nil, err
	}
	if len(out.Messages) == 0 {
		return nil, nil
	}
	return out.Messages[0], nil
}

func (p *CloudPort) process(ctx context.Context, queueName, url string, raw *sqs.Message, handler Handler, isPriority bool) {
	ctx, span := obs.StartSpan(ctx, "queue.process")
	defer span.End()

	job, err := DecodeEnvelope([]byte(aws.StringValue(raw.Body)))
	start := time.Now()
	var herr error
	if err != nil {
		p.log.Error("invalid job payload", obs.String("queue", queueName), obs.Err(err))
		herr = err
	} else {
		msg := Message{
			ID:          aws.StringValue(raw.MessageId),
			Job:         job,
			IsPriority:  isPriority,
			SourceQueue: queueName,
			receipt:     aws.StringValue(raw.ReceiptHandle),
		}
		herr = handler(ctx, msg)
	}
	obs.DurationSeconds.WithLabelValues(queueName).Observe(time.Since(start).Seconds())
	if herr != nil {
		obs.FailuresTotal.WithLabelValues(queueName).Inc()
	}

	// Ack unconditionally: duplicates are less harmful than loss for this
	// workload (spec.md 9 "Acknowledgment policy"). A panic between receipt
	// and this point leaves the message for redelivery after the visibility
	// timeout, which is the intended at-most-once-per-delivery contract.
	if _, delErr := p.client.DeleteMessageWithContext(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(url),
		ReceiptHandle: raw.ReceiptHandle,
	}); delErr != nil {
		p.log.Error("ack (delete) failed", obs.String("queue", queueName), obs.Err(delErr))
	}
}

func (p *CloudPort) Close() error { return nil }
