// Package domain contains the core concepts of the url2pdf service: conversion requests and
// their normalization, the response envelope, the error taxonomy and the Renderer capability.
// Keep this package free of transport (HTTP) and infrastructure (Redis/Chrome) concerns.
package domain
