package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
)

// ActionSubmission mirrors the wire format the consumer expects
type ActionSubmission struct {
	SkaterID string                 `json:"skater_id"`
	Kind     string                 `json:"kind"`
	RefID    string                 `json:"ref_id,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

var skaterPrefixes = []string{
	"Ollie", "Kickflip", "Grind", "Nollie", "Fakie", "Switch", "Gnarly", "Vert", "Bowl", "Rail",
	"Coping", "Drop", "Carve", "Slash", "Shred", "Pop", "Flip", "Air", "Slide", "Manual",
	"Heelflip", "Boardslide", "Darkslide", "Nosegrind", "Tailslide", "Crooked", "Smith", "Feeble", "Blunt", "Pivot",
}

// action mix weighted toward plain visits, the way real park traffic looks
var actionKinds = []struct {
	kind   string
	weight int
}{
	{"visit", 70},
	{"challenge_approved", 12},
	{"event_attended", 10},
	{"sale_completed", 8},
}

func getSkaterName(idx int) string {
	prefixIdx := idx % len(skaterPrefixes)
	suffix := idx/len(skaterPrefixes) + 1
	return fmt.Sprintf("%s%d", skaterPrefixes[prefixIdx], suffix)
}

func pickActionKind() string {
	total := 0
	for _, a := range actionKinds {
		total += a.weight
	}
	n := rand.Intn(total)
	for _, a := range actionKinds {
		if n < a.weight {
			return a.kind
		}
		n -= a.weight
	}
	return "visit"
}

func main() {
	// Command line flags
	brokers := flag.String("brokers", "localhost:9094", "Kafka brokers (comma-separated)")
	topic := flag.String("topic", "park-actions", "Kafka topic")
	totalSkaters := flag.Int("skaters", 500, "Total number of skaters to simulate")
	actionsPerSecond := flag.Int("rate", 50, "Actions per second")
	duration := flag.Duration("duration", 0, "Duration to run (0 = forever)")
	flag.Parse()

	brokerList := strings.Split(*brokers, ",")

	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println("  🛹 Kafka Park Action Producer")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("  Brokers:          %s\n", *brokers)
	fmt.Printf("  Topic:            %s\n", *topic)
	fmt.Printf("  Total Skaters:    %d\n", *totalSkaters)
	fmt.Printf("  Actions/sec:      %d\n", *actionsPerSecond)
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	// Configure Sarama producer
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Flush.Frequency = 100 * time.Millisecond
	config.Producer.Flush.Messages = 100
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true

	// Create producer
	producer, err := sarama.NewAsyncProducer(brokerList, config)
	if err != nil {
		log.Fatalf("Failed to create producer: %v", err)
	}
	defer producer.Close()

	// Handle producer errors and successes
	var successCount, errorCount int64
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for range producer.Successes() {
			atomic.AddInt64(&successCount, 1)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for err := range producer.Errors() {
			atomic.AddInt64(&errorCount, 1)
			log.Printf("Producer error: %v", err)
		}
	}()

	// Handle shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})

	// Send message helper
	sendMessage := func(submission ActionSubmission) {
		data, err := json.Marshal(submission)
		if err != nil {
			log.Printf("Failed to marshal message: %v", err)
			return
		}

		msg := &sarama.ProducerMessage{
			Topic: *topic,
			Key:   sarama.StringEncoder(submission.SkaterID),
			Value: sarama.ByteEncoder(data),
		}

		select {
		case producer.Input() <- msg:
		case <-done:
			return
		}
	}

	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	interval := time.Second / time.Duration(*actionsPerSecond)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	statsTicker := time.NewTicker(5 * time.Second)
	defer statsTicker.Stop()

	var endTime time.Time
	if *duration > 0 {
		endTime = time.Now().Add(*duration)
	}

	var actionCount int64

	shutdown := func(reason string) {
		fmt.Printf("\n\n%s\n", reason)
		close(done)
		producer.AsyncClose()
		wg.Wait()
		fmt.Printf("\n✓ Completed. Sent: %d, Errors: %d\n", atomic.LoadInt64(&successCount), atomic.LoadInt64(&errorCount))
	}

	for {
		select {
		case <-sigChan:
			shutdown("Shutting down...")
			return

		case <-ticker.C:
			if *duration > 0 && time.Now().After(endTime) {
				shutdown("Duration reached, shutting down...")
				return
			}

			// 60% chance to pick a regular, bottom half are casual drop-ins
			var skaterIdx int
			if rand.Intn(100) < 60 {
				skaterIdx = rand.Intn(*totalSkaters / 2)
			} else {
				skaterIdx = rand.Intn(*totalSkaters)
			}

			kind := pickActionKind()
			submission := ActionSubmission{
				SkaterID: getSkaterName(skaterIdx),
				Kind:     kind,
			}
			if kind != "visit" {
				submission.RefID = uuid.NewString()
			}
			sendMessage(submission)
			atomic.AddInt64(&actionCount, 1)

		case <-statsTicker.C:
			actions := atomic.LoadInt64(&actionCount)
			success := atomic.LoadInt64(&successCount)
			errors := atomic.LoadInt64(&errorCount)
			fmt.Printf("[%s] Actions: %d | Sent: %d | Errors: %d\n",
				time.Now().Format("15:04:05"),
				actions,
				success,
				errors,
			)
		}
	}
}
