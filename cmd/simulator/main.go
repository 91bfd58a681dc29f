// Command simulator drives a game server with synthetic websocket traffic:
// a pool of players joins, moves inside a shared geocell, shoots and claims
// drones, so the whole dispatch path can be exercised without real clients.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/geostrike/internal/domain"
)

var playerPrefixes = []string{
	"Phoenix", "Shadow", "Thunder", "Storm", "Blaze", "Ninja", "Dragon", "Wolf", "Hawk", "Viper",
	"Ghost", "Titan", "Frost", "Cyber", "Nova", "Raven", "Omega", "Alpha", "Delta", "Sigma",
}

func playerName(idx int) string {
	prefixIdx := idx % len(playerPrefixes)
	suffix := idx/len(playerPrefixes) + 1
	return fmt.Sprintf("%s%d", playerPrefixes[prefixIdx], suffix)
}

type simPlayer struct {
	id   string
	conn *websocket.Conn
	loc  domain.Location

	mu     sync.Mutex
	drones []string
}

func (p *simPlayer) send(env domain.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn.WriteJSON(env)
}

func (p *simPlayer) rememberDrone(id string) {
	p.mu.Lock()
	p.drones = append(p.drones, id)
	p.mu.Unlock()
}

func (p *simPlayer) takeDrone() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.drones) == 0 {
		return "", false
	}
	id := p.drones[len(p.drones)-1]
	p.drones = p.drones[:len(p.drones)-1]
	return id, true
}

func main() {
	serverURL := flag.String("url", "ws://localhost:8080/ws", "WebSocket endpoint")
	totalPlayers := flag.Int("players", 10, "Number of simulated players")
	actionsPerSecond := flag.Int("rate", 5, "Actions per second across the pool")
	duration := flag.Duration("duration", 0, "Duration to run (0 = forever)")
	lat := flag.Float64("lat", 40.7128, "Base latitude for the player pool")
	lon := flag.Float64("lon", -74.0060, "Base longitude for the player pool")
	flag.Parse()

	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println("  GeoStrike traffic simulator")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("  Endpoint:     %s\n", *serverURL)
	fmt.Printf("  Players:      %d\n", *totalPlayers)
	fmt.Printf("  Actions/sec:  %d\n", *actionsPerSecond)
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	var sent, received, errors int64
	done := make(chan struct{})
	var wg sync.WaitGroup

	// Connect and join the pool. Tiny jitter keeps everyone in one geocell.
	players := make([]*simPlayer, 0, *totalPlayers)
	for i := 0; i < *totalPlayers; i++ {
		id := playerName(i)
		conn, _, err := websocket.DefaultDialer.Dial(*serverURL, nil)
		if err != nil {
			log.Fatalf("failed to connect player %s: %v", id, err)
		}

		p := &simPlayer{
			id:   id,
			conn: conn,
			loc: domain.Location{
				Latitude:  *lat + rand.Float64()*0.0004,
				Longitude: *lon + rand.Float64()*0.0004,
			},
		}
		players = append(players, p)

		join := domain.NewEnvelope(domain.MessageTypeJoin, id, domain.JoinPayload{
			Player: domain.PlayerInfo{PlayerID: id, Location: &p.loc},
		})
		if err := p.send(join); err != nil {
			log.Fatalf("failed to join player %s: %v", id, err)
		}
		atomic.AddInt64(&sent, 1)

		// Read loop: collect drone offers, count everything else.
		wg.Add(1)
		go func(p *simPlayer) {
			defer wg.Done()
			for {
				_, raw, err := p.conn.ReadMessage()
				if err != nil {
					select {
					case <-done:
					default:
						atomic.AddInt64(&errors, 1)
					}
					return
				}
				atomic.AddInt64(&received, 1)

				var env domain.Envelope
				if err := json.Unmarshal(raw, &env); err != nil {
					continue
				}
				if env.Type == domain.MessageTypeNewDrone {
					var payload domain.DronePayload
					if err := json.Unmarshal(env.Data, &payload); err == nil {
						p.rememberDrone(payload.DroneID)
					}
				}
			}
		}(p)
	}
	fmt.Printf("✓ %d players joined\n\n", len(players))
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(time.Second / time.Duration(*actionsPerSecond))
	defer ticker.Stop()

	statsTicker := time.NewTicker(5 * time.Second)
	defer statsTicker.Stop()

	var endTime time.Time
	if *duration > 0 {
		endTime = time.Now().Add(*duration)
	}

	shutdown := func() {
		close(done)
		for _, p := range players {
			p.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			p.conn.Close()
		}
		wg.Wait()
		fmt.Printf("\n✓ Completed. Sent: %d, Received: %d, Errors: %d\n",
			atomic.LoadInt64(&sent), atomic.LoadInt64(&received), atomic.LoadInt64(&errors))
	}

	for {
		select {
		case <-sigChan:
			fmt.Println("\n\nShutting down...")
			shutdown()
			return

		case <-ticker.C:
			if *duration > 0 && time.Now().After(endTime) {
				fmt.Println("\n\nDuration reached, shutting down...")
				shutdown()
				return
			}

			p := players[rand.Intn(len(players))]
			var env domain.Envelope

			switch rand.Intn(10) {
			case 0, 1, 2, 3:
				env = domain.NewEnvelope(domain.MessageTypeShoot, p.id, domain.ShootPayload{
					Location: &p.loc,
				})
			case 4, 5:
				target := players[rand.Intn(len(players))]
				if target.id == p.id {
					continue
				}
				env = domain.NewEnvelope(domain.MessageTypeHit, p.id, domain.HitPayload{
					TargetPlayerID: target.id,
				})
			case 6, 7:
				droneID, ok := p.takeDrone()
				if !ok {
					continue
				}
				env = domain.NewEnvelope(domain.MessageTypeShootDrone, p.id, domain.ShootDronePayload{
					Drone: domain.DroneRef{DroneID: droneID},
				})
			case 8:
				env = domain.NewEnvelope(domain.MessageTypeReload, p.id, nil)
			default:
				env = domain.NewEnvelope(domain.MessageTypeStats, p.id, nil)
			}

			if err := p.send(env); err != nil {
				atomic.AddInt64(&errors, 1)
			} else {
				atomic.AddInt64(&sent, 1)
			}

		case <-statsTicker.C:
			fmt.Printf("[%s] Sent: %d | Received: %d | Errors: %d\n",
				time.Now().Format("15:04:05"),
				atomic.LoadInt64(&sent),
				atomic.LoadInt64(&received),
				atomic.LoadInt64(&errors),
			)
		}
	}
}
