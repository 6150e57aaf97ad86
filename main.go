package main

import "github.com/roberta039/Gym-Trainer/cmd"

func main() {
	cmd.Execute()
}
