package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"strings"

	"github.com/parleychat/parley/pkg/protocol"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:8888", "server address")
	flag.Parse()

	conn, err := net.Dial("tcp", *addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to the server: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = conn.Close() }()

	// Server frames arrive at any time (broadcasts, private messages,
	// kick notifications), so a background reader prints everything.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			frame, err := protocol.ReadFrame(conn)
			if err != nil {
				if err != io.EOF {
					fmt.Fprintf(os.Stderr, "connection lost: %v\n", err)
				}
				return
			}
			fmt.Println(string(frame))
		}
	}()

	stdin := bufio.NewScanner(os.Stdin)
	stdin.Buffer(make([]byte, 0, 64*1024), int(protocol.MaxFrameSize))

	for {
		printMenu()
		choice, ok := readLine(stdin)
		if !ok {
			return
		}

		var payload []byte
		switch strings.TrimSpace(choice) {
		case "1":
			u := prompt(stdin, "Enter username: ")
			p := prompt(stdin, "Enter password: ")
			payload = protocol.AppendRequest(protocol.VerbRegister, []string{u}, []byte(p))
		case "2":
			u := prompt(stdin, "Enter username: ")
			p := prompt(stdin, "Enter password: ")
			payload = protocol.AppendRequest(protocol.VerbAuthenticate, []string{u}, []byte(p))
		case "3":
			room := prompt(stdin, "Enter chat room name: ")
			payload = protocol.AppendRequest(protocol.VerbJoin, []string{room}, nil)
		case "4":
			room := prompt(stdin, "Enter chat room name: ")
			payload = protocol.AppendRequest(protocol.VerbLeave, []string{room}, nil)
		case "5":
			room := prompt(stdin, "Enter chat room name: ")
			msg := prompt(stdin, "Enter message: ")
			payload = protocol.AppendRequest(protocol.VerbSendRoom, []string{room}, []byte(msg))
		case "6":
			user := prompt(stdin, "Enter recipient username: ")
			msg := prompt(stdin, "Enter message: ")
			payload = protocol.AppendRequest(protocol.VerbSendPrivate, []string{user}, []byte(msg))
		case "7":
			payload = protocol.AppendRequest(protocol.VerbList, nil, nil)
		case "8":
			room := prompt(stdin, "Enter chat room name: ")
			user := prompt(stdin, "Enter target username: ")
			payload = protocol.AppendRequest(protocol.VerbKickUser, []string{room, user}, nil)
		case "9":
			room := prompt(stdin, "Enter chat room name: ")
			user := prompt(stdin, "Enter target username: ")
			payload = protocol.AppendRequest(protocol.VerbBanUser, []string{room, user}, nil)
		case "10":
			room := prompt(stdin, "Enter chat room name: ")
			user := prompt(stdin, "Enter target username: ")
			payload = protocol.AppendRequest(protocol.VerbGrantModerator, []string{room, user}, nil)
		case "11":
			room := prompt(stdin, "Enter chat room name: ")
			user := prompt(stdin, "Enter target username: ")
			payload = protocol.AppendRequest(protocol.VerbRevokeModerator, []string{room, user}, nil)
		case "12":
			user := prompt(stdin, "Enter username: ")
			payload = protocol.AppendRequest(protocol.VerbShowProfile, []string{user}, nil)
		case "13":
			picture := prompt(stdin, "Enter profile picture: ")
			status := prompt(stdin, "Enter status message: ")
			payload = protocol.AppendRequest(protocol.VerbUpdateProfile, []string{picture}, []byte(status))
		case "14":
			room := prompt(stdin, "Enter chat room name: ")
			path := prompt(stdin, "Enter local file path: ")
			name := prompt(stdin, "Enter remote file name: ")
			data, err := os.ReadFile(path) //nolint:gosec // user-chosen upload path
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to read file: %v\n", err)
				continue
			}
			payload = protocol.AppendRequest(protocol.VerbSendFile, []string{room, name}, data)
		case "15":
			room := prompt(stdin, "Enter chat room name: ")
			name := prompt(stdin, "Enter remote file name: ")
			payload = protocol.AppendRequest(protocol.VerbGetFile, []string{room, name}, nil)
		case "16":
			_ = protocol.WriteFrame(conn, protocol.AppendRequest(protocol.VerbExit, nil, nil))
			return
		default:
			fmt.Println("Unknown option.")
			continue
		}

		if err := protocol.WriteFrame(conn, payload); err != nil {
			fmt.Fprintf(os.Stderr, "send failed: %v\n", err)
			return
		}

		select {
		case <-done:
			return
		default:
		}
	}
}

func printMenu() {
	fmt.Println("=== Parley Client ===")
	fmt.Println("1. Register")
	fmt.Println("2. Login")
	fmt.Println("3. Join Chat Room")
	fmt.Println("4. Leave Chat Room")
	fmt.Println("5. Send Room Message")
	fmt.Println("6. Send Private Message")
	fmt.Println("7. List Chat Rooms")
	fmt.Println("8. Kick User")
	fmt.Println("9. Ban User")
	fmt.Println("10. Grant Moderator Rights")
	fmt.Println("11. Revoke Moderator Rights")
	fmt.Println("12. Show Profile")
	fmt.Println("13. Update Profile")
	fmt.Println("14. Send File")
	fmt.Println("15. Get File")
	fmt.Println("16. Exit")
	fmt.Println("=====================")
	fmt.Print("Select an option: ")
}

func prompt(s *bufio.Scanner, label string) string {
	fmt.Print(label)
	line, _ := readLine(s)
	return strings.TrimSpace(line)
}

func readLine(s *bufio.Scanner) (string, bool) {
	if !s.Scan() {
		return "", false
	}
	return s.Text(), true
}
