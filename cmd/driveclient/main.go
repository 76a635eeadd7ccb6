package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"inverter-drive/internal/client"
	"inverter-drive/internal/drive"
	protocol "inverter-drive/internal/protocol/drivelink"
)

func main() {
	addr := pflag.StringP("addr", "a", "127.0.0.1:9600", "simulator address")
	driveID := pflag.String("drive", "DRIVE000000000001", "drive id")
	user := pflag.StringP("user", "u", "admin", "username")
	pass := pflag.StringP("password", "p", "admin", "password")
	every := pflag.Uint16("every", 100, "receive one sample in every N ticks")
	set := pflag.StringToString("set", nil, "parameters to write, e.g. --set speed_ref=100,mode=FOC")
	fault := pflag.String("fault", "", "fault to inject (Overcurrent, Undervoltage, PhaseLoss, Overheat, IGBTFailure)")
	clearFault := pflag.Bool("clear", false, "clear the active fault")
	duration := pflag.Duration("duration", 10*time.Second, "how long to print samples, 0 to skip")
	pflag.Parse()

	if err := run(*addr, *driveID, *user, *pass, *every, *set, *fault, *clearFault, *duration); err != nil {
		fmt.Fprintf(os.Stderr, "driveclient: %v\n", err)
		os.Exit(1)
	}
}

func run(addr, driveID, user, pass string, every uint16, set map[string]string, fault string, clearFault bool, duration time.Duration) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := client.Dial(ctx, addr, driveID)
	if err != nil {
		return fmt.Errorf("连接服务器失败: %w", err)
	}
	defer c.Close()
	fmt.Printf("已连接到 %s\n", addr)

	if err := c.Login(user, pass); err != nil {
		return fmt.Errorf("登入失败: %w", err)
	}
	fmt.Println(">> 登入成功")

	printStatus(c)

	if len(set) > 0 {
		if err := c.SetParams(set); err != nil {
			return fmt.Errorf("参数写入失败: %w", err)
		}
		fmt.Printf(">> 参数已写入: %v\n", set)
	}
	if fault != "" {
		kind, err := drive.ParseFaultKind(fault)
		if err != nil {
			return err
		}
		if err := c.InjectFault(kind); err != nil {
			return fmt.Errorf("故障注入失败: %w", err)
		}
		fmt.Printf(">> 已注入故障 %s\n", kind)
	}
	if clearFault {
		if err := c.ClearFault(); err != nil {
			return err
		}
		fmt.Println(">> 故障已清除")
	}

	if duration <= 0 {
		return nil
	}
	if err := c.Subscribe(every); err != nil {
		return fmt.Errorf("订阅失败: %w", err)
	}
	fmt.Printf(">> 已订阅, 每 %d 个 tick 一帧\n", every)
	fmt.Println("tick        time      speed     torque   fault")
	c.OnSample = func(sd *protocol.SampleData) {
		for _, u := range sd.Units {
			fmt.Printf("%-10d %8.3f %10.2f %10.2f   %s\n", u.Tick, u.Time, u.Speed, u.Torque, u.Fault)
		}
	}

	readCtx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()
	if err := c.ReadSamples(readCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func printStatus(c *client.Client) {
	st, err := c.Status()
	if err != nil {
		fmt.Printf("状态查询失败: %v\n", err)
		return
	}
	var b strings.Builder
	fmt.Fprintf(&b, "   tick=%d t=%.4fs mode=%s fault=%s", st.Tick, st.SimTime, st.Mode, st.Fault)
	if st.ThermalTrip {
		b.WriteString(" (thermal)")
	}
	fmt.Fprintf(&b, " speed=%.2f rad/s torque=%.2f N*m motor=%.1f°C inverter=%.1f°C",
		st.Speed, st.Torque, st.MotorTemperature, st.InverterTemperature)
	fmt.Println(b.String())
}
