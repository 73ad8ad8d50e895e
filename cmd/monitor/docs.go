package main

//go:generate swag init -g cmd/monitor/main.go -o docs

// @title           Prediction Market Movers API
// @version         0.1.0
// @description     Minute-tick mover detection and classification across prediction markets.
// @host            localhost:8080
// @BasePath        /
// @schemes         http
