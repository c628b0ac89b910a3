package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/wfunc/mafia/broadcast"
	"github.com/wfunc/mafia/models"
	"github.com/wfunc/mafia/offline"
	"github.com/wfunc/mafia/state"
)

func narrateCmd() *cobra.Command {
	var (
		players  []string
		cfg      = models.DefaultRoleConfig()
		generate bool
	)
	cmd := &cobra.Command{
		Use:   "narrate",
		Short: "Run a pass-and-play game on a single device",
		RunE: func(cmd *cobra.Command, args []string) error {
			if generate {
				return runGenerator(cmd.InOrStdin(), cmd.OutOrStdout(), players, cfg)
			}
			return runNarration(cmd.InOrStdin(), cmd.OutOrStdout(), players, cfg)
		},
	}
	cmd.Flags().StringSliceVarP(&players, "players", "p", nil, "comma separated player names")
	cmd.Flags().IntVar(&cfg.Mafia, "mafia", cfg.Mafia, "number of mafia")
	cmd.Flags().IntVar(&cfg.Detective, "detective", cfg.Detective, "number of detectives")
	cmd.Flags().IntVar(&cfg.Doctor, "doctor", cfg.Doctor, "number of doctors")
	cmd.Flags().BoolVar(&generate, "generate", false, "only deal role cards, no narration")
	_ = cmd.MarkFlagRequired("players")
	return cmd
}

// prompter 逐行读取输入
type prompter struct {
	in  *bufio.Scanner
	out io.Writer
}

func (p *prompter) printf(format string, args ...any) {
	fmt.Fprintf(p.out, format, args...)
}

func (p *prompter) line() (string, error) {
	if !p.in.Scan() {
		if err := p.in.Err(); err != nil {
			return "", err
		}
		return "", io.ErrUnexpectedEOF
	}
	return strings.TrimSpace(p.in.Text()), nil
}

func (p *prompter) wait(format string, args ...any) error {
	p.printf(format+"\n", args...)
	_, err := p.line()
	return err
}

// choose 列出候选并读取序号，allowSkip 时 0 表示跳过
func (p *prompter) choose(prompt string, options []models.PlayerView, allowSkip bool) (*models.PlayerView, error) {
	p.printf("%s\n", prompt)
	for i, o := range options {
		p.printf("  %d) %s\n", i+1, o.Name)
	}
	if allowSkip {
		p.printf("  0) skip\n")
	}
	for {
		text, err := p.line()
		if err != nil {
			return nil, err
		}
		n, err := strconv.Atoi(text)
		switch {
		case err != nil || n < 0 || n > len(options):
		case n == 0 && allowSkip:
			return nil, nil
		case n > 0:
			return &options[n-1], nil
		}
		p.printf("invalid choice %q\n", text)
	}
}

func runGenerator(in io.Reader, out io.Writer, names []string, cfg models.RoleConfig) error {
	cards, err := offline.Generate(names, cfg, nil)
	if err != nil {
		return err
	}
	p := &prompter{in: bufio.NewScanner(in), out: out}
	for _, c := range cards {
		if err := p.wait("Pass the device to %s and press Enter.", c.Name); err != nil {
			return err
		}
		if err := p.wait("%s, you are %s (%s). Press Enter to hide.", c.Name, c.Role.Name, c.Role.Description); err != nil {
			return err
		}
	}
	p.printf("All roles dealt.\n")
	return nil
}

// 夜晚按固定顺序唤醒角色
var nightOrder = []models.RoleID{models.RoleMafia, models.RoleDetective, models.RoleDoctor}

func runNarration(in io.Reader, out io.Writer, names []string, cfg models.RoleConfig, opts ...state.Option) error {
	n, err := offline.NewNarrator(names, cfg, opts...)
	if err != nil {
		return err
	}
	p := &prompter{in: bufio.NewScanner(in), out: out}
	n.Events()

	for _, pl := range n.Players() {
		role, _ := n.RoleOf(pl.ID)
		if err := p.wait("Pass the device to %s and press Enter.", pl.Name); err != nil {
			return err
		}
		if err := p.wait("%s, you are %s. %s Press Enter to hide.", pl.Name, role.Name, role.Description); err != nil {
			return err
		}
	}
	if err := n.AcknowledgeAll(); err != nil {
		return err
	}
	n.Events()

	for {
		switch n.Phase() {
		case models.PhaseNight:
			if err := narrateNight(p, n); err != nil {
				return err
			}
		case models.PhaseDay:
			p.printf("The sun rises. Everyone, open your eyes.\n")
			if err := p.wait("Discuss, then press Enter to start voting."); err != nil {
				return err
			}
			if err := n.StartVoting(); err != nil {
				return err
			}
			n.Events()
		case models.PhaseVoting:
			if err := narrateVoting(p, n); err != nil {
				return err
			}
		case models.PhaseGameOver:
			result, _ := n.Result()
			p.printf("Game over: %s wins after %d rounds.\n", result.Winner, result.RoundsPlayed)
			for _, pl := range result.FinalRoster {
				status := "alive"
				if !pl.Alive {
					status = "dead"
				}
				p.printf("  %s: %s (%s)\n", pl.Name, pl.Role, status)
			}
			return nil
		default:
			return fmt.Errorf("unexpected phase %s", n.Phase())
		}
	}
}

func living(n *offline.Narrator, except string) []models.PlayerView {
	var out []models.PlayerView
	for _, pl := range n.Players() {
		if pl.Alive && pl.ID != except {
			out = append(out, pl)
		}
	}
	return out
}

func narrateNight(p *prompter, n *offline.Narrator) error {
	p.printf("Night %d falls on the village. Everyone, close your eyes.\n", n.Round())
	for _, roleID := range nightOrder {
		for _, pl := range living(n, "") {
			if n.Phase() != models.PhaseNight {
				break
			}
			role, _ := n.RoleOf(pl.ID)
			if role.ID != roleID {
				continue
			}
			for {
				target, err := p.choose(fmt.Sprintf("%s (%s), choose your target:", pl.Name, role.Name), living(n, pl.ID), false)
				if err != nil {
					return err
				}
				if err := n.NightAction(pl.ID, target.ID); err != nil {
					p.printf("%v\n", err)
					continue
				}
				break
			}
		}
	}
	if n.Phase() == models.PhaseNight {
		if err := n.ProcessNight(); err != nil {
			return err
		}
	}
	report(p, n.Events())
	return nil
}

func narrateVoting(p *prompter, n *offline.Narrator) error {
	p.printf("Voting is open.\n")
	for _, voter := range living(n, "") {
		if n.Phase() != models.PhaseVoting {
			break
		}
		for {
			target, err := p.choose(fmt.Sprintf("%s, who do you vote for?", voter.Name), living(n, voter.ID), true)
			if err != nil {
				return err
			}
			if target == nil {
				break
			}
			if err := n.Vote(voter.ID, target.ID); err != nil {
				p.printf("%v\n", err)
				continue
			}
			break
		}
	}
	if n.Phase() == models.PhaseVoting {
		if err := n.ProcessVotes(); err != nil {
			return err
		}
	}
	report(p, n.Events())
	return nil
}

// report 朗读结算事件，私有事件标明接收者
func report(p *prompter, deliveries []broadcast.Delivery) {
	for _, d := range deliveries {
		switch ev := d.Event.Payload.(type) {
		case models.NightResults:
			if ev.Eliminated == nil {
				p.printf("No one died last night.\n")
			} else {
				p.printf("%s was killed in the night. They were %s.\n", ev.Eliminated.Name, ev.Eliminated.Role)
			}
		case models.DetectiveReport:
			verdict := "not mafia"
			if ev.IsMafia {
				verdict = "mafia"
			}
			p.printf("[detective only] %s is %s.\n", ev.TargetName, verdict)
		case models.VoteResults:
			switch {
			case ev.Eliminated != nil:
				p.printf("%s was voted out. They were %s.\n", ev.Eliminated.Name, ev.Eliminated.Role)
			case ev.Tie:
				p.printf("The vote was tied. No one was eliminated.\n")
			default:
				p.printf("No votes were cast.\n")
			}
		}
	}
}
