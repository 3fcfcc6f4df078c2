package control

const SendQueueLen = sendQueueLen
