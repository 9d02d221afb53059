package main

import (
	"bytes"
	"encoding/json"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
)

// arena-bot plays one human seat with random valid moves. Handy for
// smoke-testing a server without burning model tokens.

type update struct {
	Type    string  `json:"type"`
	MatchID string  `json:"match_id"`
	Status  string  `json:"status"`
	Board   [][]int `json:"board"`
	Turn    int     `json:"current_turn"`
	Winner  int     `json:"winner"`
	Draw    bool    `json:"draw"`
}

func main() {
	serverURL := getenv("SERVER_URL", "http://localhost:8080")
	wsURL := getenv("WS_URL", "ws://localhost:8080/api/ws")
	matchID := getenv("MATCH_ID", "")
	token := getenv("TOKEN", "")
	player, _ := strconv.Atoi(getenv("PLAYER", "1"))
	if matchID == "" || token == "" {
		log.Fatal("MATCH_ID and TOKEN are required")
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?match_id="+matchID, nil)
	if err != nil {
		log.Fatal(err)
	}
	defer conn.Close()

	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))

	// Kick off in case it is already our turn before the first update.
	state := fetchState(serverURL, matchID)
	if state != nil {
		maybeMove(serverURL, matchID, token, player, rnd, state)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var u update
		if err := json.Unmarshal(data, &u); err != nil || u.Type != "update" {
			continue
		}
		if u.Status != "IN_PROGRESS" {
			log.Printf("match over: status=%s winner=%d draw=%v", u.Status, u.Winner, u.Draw)
			return
		}
		maybeMove(serverURL, matchID, token, player, rnd, &u)
	}
}

func fetchState(serverURL, matchID string) *update {
	resp, err := http.Get(serverURL + "/api/matches/" + matchID)
	if err != nil || resp.StatusCode != http.StatusOK {
		return nil
	}
	defer resp.Body.Close()
	var u update
	if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
		return nil
	}
	return &u
}

func maybeMove(serverURL, matchID, token string, player int, rnd *rand.Rand, u *update) {
	if u.Turn != player {
		return
	}
	cols := openColumns(u.Board)
	if len(cols) == 0 {
		return
	}
	col := cols[rnd.Intn(len(cols))]
	body, _ := json.Marshal(map[string]any{"token": token, "column": col})
	resp, err := http.Post(serverURL+"/api/matches/"+matchID+"/moves",
		"application/json", bytes.NewReader(body))
	if err != nil {
		log.Printf("move failed: %v", err)
		return
	}
	resp.Body.Close()
	log.Printf("played column %d (status %d)", col, resp.StatusCode)
}

func openColumns(board [][]int) []int {
	if len(board) == 0 {
		return nil
	}
	var cols []int
	for c, v := range board[0] {
		if v == 0 {
			cols = append(cols, c)
		}
	}
	return cols
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
