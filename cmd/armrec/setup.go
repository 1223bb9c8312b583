package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/gwillem/armrec/pkg/config"
	"github.com/gwillem/armrec/pkg/protocol"
	"github.com/gwillem/armrec/pkg/robot"
	"github.com/gwillem/armrec/pkg/transport"
)

type SetupCommand struct {
	Manual bool `long:"manual" description:"Type the device paths instead of probing ports"`
}

func (c *SetupCommand) Execute(args []string) error {
	fmt.Println(headerStyle.Render("armrec Setup"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━"))
	fmt.Println()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ports, err := transport.ListPorts()
	if err != nil {
		return fmt.Errorf("enumerate ports: %w", err)
	}

	var master, follower string
	if c.Manual {
		master, follower, err = promptPorts(cfg, ports)
	} else {
		master, follower, err = scanForArms(cfg, ports)
	}
	if err != nil {
		return err
	}

	cfg.Master.Port = master
	cfg.Follower.Port = follower
	if err := cfg.Validate(); err != nil {
		return err
	}

	path := configPath(cfg)
	if config.Exists(path) {
		overwrite := true
		confirm := huh.NewConfirm().
			Title(fmt.Sprintf("Overwrite %s?", path)).
			Value(&overwrite)
		if err := huh.NewForm(huh.NewGroup(confirm)).Run(); err != nil {
			return err
		}
		if !overwrite {
			fmt.Println(dimStyle.Render("Nothing saved."))
			return nil
		}
	}
	if err := cfg.Save(path); err != nil {
		return err
	}

	fmt.Println()
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"))
	fmt.Println(successStyle.Render("Setup complete!"))
	fmt.Printf("Configuration saved to %s\n", path)
	fmt.Println()
	fmt.Println("Start recording with: " + headerStyle.Render("armrec record --no-prompt"))
	return nil
}

func promptPorts(cfg *config.Config, ports []string) (string, string, error) {
	master, err := promptPort("Master arm device", defaultPort(cfg.Master.Port, transport.DefaultMasterDevice), ports)
	if err != nil {
		return "", "", err
	}
	follower, err := promptPort("Follower arm device", defaultPort(cfg.Follower.Port, transport.DefaultFollowerDevice), ports)
	if err != nil {
		return "", "", err
	}
	return master, follower, nil
}

func scanForArms(cfg *config.Config, ports []string) (string, string, error) {
	fmt.Println("Scanning for robot arms...")
	fmt.Println()

	arms := findArms(ports, transport.OpenLink, cfg.Master.SerialOptions(), cfg.Control.RetryPolicy())
	if len(arms) == 0 {
		fmt.Println("No arms answered a status request.")
		fmt.Println("Make sure your arms are connected and powered on.")
		return "", "", errors.New("no arms found")
	}

	fmt.Printf("Found %d arm(s). Let's identify them...\n\n", len(arms))

	var masterPort, followerPort string
	for _, arm := range arms {
		role, err := identifyArm(arm, masterPort == "", followerPort == "")
		if err != nil {
			return "", "", err
		}
		switch role {
		case robot.Master:
			masterPort = arm.port
		case robot.Follower:
			followerPort = arm.port
		}

		if masterPort != "" && followerPort != "" {
			break
		}
	}

	fmt.Println()
	if masterPort == "" || followerPort == "" {
		var missing []string
		if masterPort == "" {
			missing = append(missing, "master")
		}
		if followerPort == "" {
			missing = append(missing, "follower")
		}
		return "", "", fmt.Errorf("%s arm not identified", strings.Join(missing, " and "))
	}

	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━━━━━━"))
	fmt.Println(successStyle.Render("Arms identified:"))
	fmt.Printf("  Master:   %s\n", masterPort)
	fmt.Printf("  Follower: %s\n", followerPort)
	return masterPort, followerPort, nil
}

type armInfo struct {
	port   string
	sample robot.JointSample
}

// findArms keeps the ports whose device answers a status request with joint telemetry.
func findArms(ports []string, open transport.Opener, opts transport.Options, policy protocol.RetryPolicy) []armInfo {
	var arms []armInfo
	for _, port := range ports {
		link, err := open(port, opts)
		if err != nil {
			continue
		}
		sample, err := protocol.Probe(link, policy)
		link.Close()
		if err != nil {
			continue
		}
		fmt.Printf("  Found arm on %s\n", port)
		arms = append(arms, armInfo{port: port, sample: sample})
	}
	return arms
}

func identifyArm(arm armInfo, needMaster, needFollower bool) (robot.Role, error) {
	var options []huh.Option[robot.Role]
	if needMaster {
		options = append(options, huh.NewOption("Master (the one you move by hand)", robot.Master))
	}
	if needFollower {
		options = append(options, huh.NewOption("Follower (the one that follows)", robot.Follower))
	}
	options = append(options, huh.NewOption("Skip this arm", robot.Role("")))

	var role robot.Role
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[robot.Role]().
				Title(fmt.Sprintf("Which arm is on %s?", arm.port)).
				Description("Current joints: " + formatSample(arm.sample)).
				Options(options...).
				Value(&role),
		),
	)
	if err := form.Run(); err != nil {
		fmt.Fprintln(os.Stderr)
		return "", err
	}
	return role, nil
}

func formatSample(s robot.JointSample) string {
	parts := make([]string, 0, 4)
	for _, name := range robot.AllJoints() {
		parts = append(parts, fmt.Sprintf("%s=%.3g", name, s.Get(name)))
	}
	return strings.Join(parts, " ")
}
