package main

import (
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/gwillem/armrec/pkg/transport"
)

type PortsCommand struct{}

func (c *PortsCommand) Execute(args []string) error {
	ports, err := transport.ListPorts()
	if err != nil {
		return fmt.Errorf("enumerate ports: %w", err)
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(dimStyle).
		Headers("#", "DEVICE")
	for i, p := range ports {
		t.Row(fmt.Sprint(i+1), p)
	}
	fmt.Println(headerStyle.Render("Available Ports"))
	fmt.Println(t)
	return nil
}

// promptPort asks for a device path, suggesting enumerated ports. An empty
// answer keeps def.
func promptPort(title, def string, ports []string) (string, error) {
	var port string
	input := huh.NewInput().
		Title(title).
		Description(fmt.Sprintf("Default %s", def)).
		Placeholder(def).
		Suggestions(ports).
		Value(&port)
	if err := huh.NewForm(huh.NewGroup(input)).Run(); err != nil {
		return "", err
	}
	if port == "" {
		port = def
	}
	return port, nil
}
