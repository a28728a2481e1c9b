//go:build integration

package mqtt

import (
	"context"
	"fmt"
	"testing"
	"time"

	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestIntegration runs a user command round trip through a real Mosquitto broker.
func TestIntegration(t *testing.T) {
	ctx := context.Background()
	req := tc.ContainerRequest{
		Image:        "eclipse-mosquitto:2.0",
		Cmd:          []string{"mosquitto", "-c", "/mosquitto-no-auth.conf"},
		ExposedPorts: []string{"1883/tcp"},
		WaitingFor:   wait.ForListeningPort("1883/tcp"),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to start container: %v", err)
	}
	defer func() {
		if err := container.Terminate(ctx); err != nil {
			t.Fatalf("failed to terminate container: %v", err)
		}
	}()

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "1883")
	if err != nil {
		t.Fatalf("failed to get mapped port: %v", err)
	}
	broker := fmt.Sprintf("tcp://%s:%s", host, port.Port())

	connect := func(id string) *PahoClient {
		var cli *PahoClient
		var err error
		for i := 0; i < 5; i++ {
			cli, err = NewPahoClient(Config{Broker: broker, ClientID: id, QoS: map[string]byte{"command": 1}})
			if err == nil {
				return cli
			}
			time.Sleep(500 * time.Millisecond)
		}
		t.Fatalf("failed to connect: %v", err)
		return nil
	}
	service := connect("service")
	defer service.Disconnect()
	cliConn := connect("cli")
	defer cliConn.Disconnect()

	topics := Topics{Prefix: "ovms/test/car", ClientID: "service"}
	srv := NewCommandServer(service, topics, func(ctx context.Context, req Request) error {
		// Reply from another goroutine, as the service loop does.
		go func() { _ = req.Respond(context.Background(), "pong: "+req.Line, nil) }()
		return nil
	})
	if err := srv.Start(ctx); err != nil {
		t.Fatalf("start server: %v", err)
	}

	client := NewCommandClient(cliConn, topics, 5*time.Second)
	resp, err := client.Send(ctx, "status")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if resp.Reply != "pong: status" {
		t.Fatalf("unexpected reply %q", resp.Reply)
	}
}
