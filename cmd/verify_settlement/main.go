// Command verify_settlement drives a running settlement service end to end:
// intake, duplicate suppression under concurrency, and delayed settlement.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

var httpClient = &http.Client{Timeout: 30 * time.Second}

type transaction struct {
	TransactionID string     `json:"transaction_id"`
	Status        string     `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
	ProcessedAt   *time.Time `json:"processed_at"`
}

func main() {
	baseURL := flag.String("base-url", "http://localhost:8000", "settlement service base URL")
	duplicates := flag.Int("duplicates", 10, "concurrent duplicate notifications to send")
	wait := flag.Duration("wait", 2*time.Minute, "how long to wait for settlement")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)

	resp := request(http.MethodGet, *baseURL+"/health", nil)
	log.Printf("Health: Status=%d Body=%s", resp.StatusCode, readBody(resp))
	if resp.StatusCode != http.StatusOK {
		log.Fatalf("Service is not healthy")
	}

	txID := fmt.Sprintf("verify-%s", uuid.NewString())
	payload := map[string]interface{}{
		"transaction_id":      txID,
		"source_account":      "acc_user_789",
		"destination_account": "acc_merchant_456",
		"amount":              1500,
		"currency":            "INR",
	}

	log.Println("--- Sending webhook ---")
	resp = request(http.MethodPost, *baseURL+"/v1/webhooks/transactions", payload)
	log.Printf("Response: Status=%d Body=%s", resp.StatusCode, readBody(resp))
	if resp.StatusCode != http.StatusAccepted {
		log.Fatalf("Expected 202 for a new transaction")
	}

	log.Printf("--- Sending %d concurrent duplicates ---", *duplicates)
	var wg sync.WaitGroup
	statuses := make(chan int, *duplicates)
	for i := 0; i < *duplicates; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := request(http.MethodPost, *baseURL+"/v1/webhooks/transactions", payload)
			readBody(r)
			statuses <- r.StatusCode
		}()
	}
	wg.Wait()
	close(statuses)
	for code := range statuses {
		if code != http.StatusOK {
			log.Fatalf("Duplicate returned %d, expected 200", code)
		}
	}
	log.Println("All duplicates suppressed")

	tx := lookup(*baseURL, txID)
	if tx.Status != "PROCESSING" || tx.ProcessedAt != nil {
		log.Fatalf("Expected PROCESSING with no processed_at, got %+v", tx)
	}

	log.Println("--- Waiting for settlement ---")
	deadline := time.Now().Add(*wait)
	for time.Now().Before(deadline) {
		tx = lookup(*baseURL, txID)
		if tx.Status == "PROCESSED" {
			break
		}
		time.Sleep(time.Second)
	}
	if tx.Status != "PROCESSED" || tx.ProcessedAt == nil {
		log.Fatalf("Transaction not settled within %s: %+v", *wait, tx)
	}

	log.Printf("✅ Settled %s after %s", txID, tx.ProcessedAt.Sub(tx.CreatedAt))

	resp = request(http.MethodGet, *baseURL+"/v1/transactions/"+uuid.NewString(), nil)
	readBody(resp)
	if resp.StatusCode != http.StatusNotFound {
		log.Fatalf("Expected 404 for unknown transaction, got %d", resp.StatusCode)
	}
	log.Println("✅ Verification complete")
}

func lookup(baseURL, txID string) transaction {
	resp := request(http.MethodGet, baseURL+"/v1/transactions/"+txID, nil)
	body := readBody(resp)
	if resp.StatusCode != http.StatusOK {
		log.Fatalf("Lookup failed: %d %s", resp.StatusCode, body)
	}
	var tx transaction
	if err := json.Unmarshal([]byte(body), &tx); err != nil {
		log.Fatalf("Failed to decode transaction: %v", err)
	}
	return tx
}

func request(method, url string, body interface{}) *http.Response {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		bodyReader = bytes.NewBuffer(jsonBody)
	}

	req, _ := http.NewRequest(method, url, bodyReader)
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		log.Fatalf("Request failed: %v", err)
	}
	return resp
}

func readBody(resp *http.Response) string {
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return string(b)
}
