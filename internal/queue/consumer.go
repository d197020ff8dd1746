package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// StartPaymentConsumer connects to RabbitMQ, declares the
// payment.completed queue (durable), and starts consuming messages.
// Each message is appended to logs/payment.log in a single-line,
// human-friendly format. The function runs a reconnect loop and keeps
// running indefinitely, logging any processing errors while rejecting
// the offending message so the server continues operating.
func StartPaymentConsumer() error {
	return runConsumer(PaymentCompletedQueue, handlePaymentMessage)
}

// StartBookingConsumer consumes booking.created events and appends
// them to logs/booking.log.
func StartBookingConsumer() error {
	return runConsumer(BookingCreatedQueue, handleBookingMessage)
}

func runConsumer(queueName string, handle func([]byte) error) error {
	url := brokerURL()

	backoff := time.Second
	for {
		conn, err := amqp.Dial(url)
		if err != nil {
			log.Printf("%s-consumer: failed to dial broker: %v; retrying in %s", queueName, err, backoff)
			time.Sleep(backoff)
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		if err := consumeLoop(conn, queueName, handle); err != nil {
			log.Printf("%s-consumer: consume loop ended: %v; reconnecting", queueName, err)
			// Sleep briefly before reconnect
			time.Sleep(2 * time.Second)
			continue
		}
	}
}

func consumeLoop(conn *amqp.Connection, queueName string, handle func([]byte) error) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.Printf("%s-consumer: set QoS failed: %v", queueName, err)
	}

	_, err = ch.QueueDeclare(queueName, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}

	msgs, err := ch.Consume(queueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for d := range msgs {
		if err := handle(d.Body); err != nil {
			log.Printf("%s-consumer: handle message failed: %v", queueName, err)
			_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
			continue
		}
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}

func handlePaymentMessage(body []byte) error {
	var ev PaymentCompletedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	line := fmt.Sprintf("[%s] Payment completed | payment_id=%d | order_id=%d | user_id=%d | reference=%s | amount=%d %s\n",
		ev.PaidAt, ev.PaymentID, ev.OrderID, ev.UserID, ev.Reference, ev.AmountCents, ev.Currency)
	return appendLog("payment.log", line)
}

func handleBookingMessage(body []byte) error {
	var ev BookingCreatedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	seat := "none"
	if ev.SeatID != nil {
		seat = fmt.Sprintf("%d", *ev.SeatID)
	}
	line := fmt.Sprintf("[%s] Booking created | booking_id=%d | code=%s | user_id=%d | schedule_id=%d | seat_id=%s | passenger=\"%s\" | departure=%s | total=%d cents\n",
		ev.CreatedAt, ev.BookingID, ev.BookingCode, ev.UserID, ev.ScheduleID, seat, ev.PassengerName, ev.DepartureDate, ev.TotalPriceCents)
	return appendLog("booking.log", line)
}

func appendLog(name, line string) error {
	// Ensure logs directory exists
	if err := os.MkdirAll("logs", 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	f, err := os.OpenFile(filepath.Join("logs", name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}
